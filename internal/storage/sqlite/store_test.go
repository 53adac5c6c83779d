package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) interfaces.Store {
		s, err := Open(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billing.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Credit(ctx, "alice", decimal.RequireFromString("12.3456")))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	b, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "12.3456", b.String())
}

func TestUnits(t *testing.T) {
	units, err := toUnits(decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(30000), units)

	units, err = toUnits(decimal.RequireFromString("-99999999999999.9999"))
	require.NoError(t, err)
	assert.Equal(t, int64(-999999999999999999), units)

	for _, bad := range []string{"1.23456", "0.00004", "10000000000000000", "1e30"} {
		_, err := toUnits(decimal.RequireFromString(bad))
		assert.ErrorIs(t, err, storage.ErrInvalidAmount, bad)
	}

	assert.Equal(t, "0.75", fromUnits(7500).String())
}
