package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() models.Features {
	return models.Features{
		NDays: 1000, Drug: "Placebo", Age: 18000, Sex: "F",
		Ascites: "N", Hepatomegaly: "Y", Spiders: "N", Edema: "S",
		Bilirubin: 1.2, Cholesterol: 300, Albumin: 3.5, Copper: 50,
		AlkPhos: 1200, SGOT: 100, Tryglicerides: 120, Platelets: 250,
		Prothrombin: 10.5, Stage: 2,
	}
}

func TestEncode(t *testing.T) {
	vec, err := Encode(sample())
	require.NoError(t, err)
	require.Len(t, vec, 18)
	assert.Equal(t, 1.0, vec[1], "Placebo")
	assert.Equal(t, 1.0, vec[3], "F")
	assert.Equal(t, 1.0, vec[5], "Hepatomegaly Y")
	assert.Equal(t, 0.5, vec[7], "Edema S")
	assert.Equal(t, 1.2, vec[8])
	assert.Equal(t, 2.0, vec[17])

	bad := sample()
	bad.Sex = "X"
	_, err = Encode(bad)
	assert.ErrorContains(t, err, "unknown Sex value")
}

func TestBaseline(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*models.Features)
		want   int
	}{
		{"low bilirubin early stage", func(f *models.Features) {}, 0},
		{"low bilirubin late stage low albumin", func(f *models.Features) { f.Stage = 4; f.Albumin = 2.5 }, 2},
		{"low bilirubin late stage normal albumin", func(f *models.Features) { f.Stage = 4 }, 0},
		{"high bilirubin normal prothrombin", func(f *models.Features) { f.Bilirubin = 5 }, 1},
		{"high bilirubin long prothrombin", func(f *models.Features) { f.Bilirubin = 5; f.Prothrombin = 12 }, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sample()
			tt.modify(&f)
			got, err := Baseline().Predict(f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionTreeRejectsCycle(t *testing.T) {
	tree := NewDecisionTree([]TreeNode{
		{FeatureIdx: 0, Threshold: 1e9, LeftChild: 1, RightChild: 1},
		{FeatureIdx: 0, Threshold: 1e9, LeftChild: 0, RightChild: 0},
	})
	_, err := tree.Predict(sample())
	assert.ErrorContains(t, err, "cycle")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	treePath := filepath.Join(dir, "tree.json")
	require.NoError(t, os.WriteFile(treePath, []byte(`[
		{"feature_idx": 17, "threshold": 2, "left_child": 1, "right_child": 2},
		{"is_leaf": true, "class_label": 0},
		{"is_leaf": true, "class_label": 2}
	]`), 0o644))

	forestPath := filepath.Join(dir, "forest.json")
	require.NoError(t, os.WriteFile(forestPath, []byte(`{"trees": [
		[{"is_leaf": true, "class_label": 1}],
		[{"is_leaf": true, "class_label": 2}],
		[{"is_leaf": true, "class_label": 1}]
	]}`), 0o644))

	tree, err := Load("decision_tree", treePath)
	require.NoError(t, err)
	got, err := tree.Predict(sample())
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	forest, err := Load("forest", forestPath)
	require.NoError(t, err)
	got, err = forest.Predict(sample())
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	baseline, err := Load("", "")
	require.NoError(t, err)
	assert.NotNil(t, baseline)

	_, err = Load("neural_net", treePath)
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	_, err = Load("decision_tree", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestForestTieGoesToLowestLabel(t *testing.T) {
	forest := NewForest(
		NewDecisionTree([]TreeNode{{IsLeaf: true, ClassLabel: 2}}),
		NewDecisionTree([]TreeNode{{IsLeaf: true, ClassLabel: 1}}),
	)
	got, err := forest.Predict(sample())
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}
