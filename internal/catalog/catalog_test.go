package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/scoring"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSeededDefault(t *testing.T) {
	store := memory.NewMemoryStore()
	c, err := New(store, DefaultManifest(), 4)
	require.NoError(t, err)

	predictors, err := c.EnsureSeeded(context.Background())
	require.NoError(t, err)
	require.Len(t, predictors, 1)
	assert.Equal(t, "GradientBoosting", predictors[0].Name)
	assert.True(t, decimal.NewFromInt(3).Equal(predictors[0].Cost))

	again, err := c.EnsureSeeded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, predictors, again)
}

func TestEnsureSeededConcurrentCatalogs(t *testing.T) {
	store := memory.NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := New(store, DefaultManifest(), 4)
			if !assert.NoError(t, err) {
				return
			}
			_, err = c.EnsureSeeded(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	predictors, err := store.ListPredictors(context.Background())
	require.NoError(t, err)
	assert.Len(t, predictors, 1)
}

func TestEnsureSeededKeepsExistingCatalog(t *testing.T) {
	store := memory.NewMemoryStore()
	require.NoError(t, store.CreatePredictor(context.Background(), models.Predictor{Name: "Custom", Cost: decimal.NewFromInt(1)}))

	c, err := New(store, DefaultManifest(), 4)
	require.NoError(t, err)
	predictors, err := c.EnsureSeeded(context.Background())
	require.NoError(t, err)
	require.Len(t, predictors, 1)
	assert.Equal(t, "Custom", predictors[0].Name)
}

func TestCost(t *testing.T) {
	store := memory.NewMemoryStore()
	c, err := New(store, DefaultManifest(), 4)
	require.NoError(t, err)
	_, err = c.EnsureSeeded(context.Background())
	require.NoError(t, err)

	cost, err := c.Cost(context.Background(), "GradientBoosting")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(cost))

	store.SetPredictorCost("GradientBoosting", decimal.RequireFromString("4.25"))
	cost, err = c.Cost(context.Background(), "GradientBoosting")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("4.25").Equal(cost), "price must not be cached")

	_, err = c.Cost(context.Background(), "Nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestScorerIsCached(t *testing.T) {
	var loads atomic.Int32
	c, err := New(memory.NewMemoryStore(), DefaultManifest(), 4, WithLoader(func(s ModelEntry) (scoring.Scorer, error) {
		loads.Add(1)
		return scoring.Baseline(), nil
	}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Scorer("GradientBoosting")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), loads.Load())

	_, err = c.Scorer("Nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestScorerLoadError(t *testing.T) {
	c, err := New(memory.NewMemoryStore(), DefaultManifest(), 4, WithLoader(func(ModelEntry) (scoring.Scorer, error) {
		return nil, errors.New("corrupt model file")
	}))
	require.NoError(t, err)

	_, err = c.Scorer("GradientBoosting")
	assert.ErrorContains(t, err, "corrupt model file")
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("valid", func(t *testing.T) {
		path := write("models.yaml", `
models:
  - name: GradientBoosting
    cost: "3"
    type: forest
    path: models/gb.json
  - name: Tree
    cost: "0.5"
    type: decision_tree
    path: /abs/tree.json
`)
		m, err := LoadManifest(path)
		require.NoError(t, err)
		require.Len(t, m.Models, 2)
		assert.Equal(t, filepath.Join(dir, "models/gb.json"), m.Models[0].Path)
		assert.Equal(t, "/abs/tree.json", m.Models[1].Path)
		assert.Equal(t, "decision_tree", m.Models[1].Type)
	})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "models: []\n", "lists no models"},
		{"bad cost", "models:\n  - name: A\n    cost: abc\n", "invalid cost"},
		{"negative cost", "models:\n  - name: A\n    cost: \"-1\"\n", "negative cost"},
		{"cost too precise", "models:\n  - name: A\n    cost: \"0.00001\"\n", "cannot be stored exactly"},
		{"cost too large", "models:\n  - name: A\n    cost: \"1e16\"\n", "cannot be stored exactly"},
		{"duplicate", "models:\n  - name: A\n  - name: A\n", "duplicate model"},
		{"missing name", "models:\n  - cost: \"1\"\n", "has no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifest(write(tt.name+".yaml", tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestManifestFromPath(t *testing.T) {
	m, err := ManifestFromPath("")
	require.NoError(t, err)
	assert.Equal(t, DefaultManifest(), m)

	_, err = ManifestFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
