package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confidential-rebalancer/internal/domain"
)

func TestPositionStore_SetAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	p := &domain.EncryptedPosition{
		StrategyID:   testStrategyID(1),
		Asset:        "assetA",
		Position:     testHandle(1),
		UpdatedBlock: 42,
	}
	require.NoError(t, store.Set(ctx, p))

	got, err := store.Get(ctx, testStrategyID(1), "assetA")
	require.NoError(t, err)
	assert.Equal(t, testHandle(1), got.Position)
	assert.Equal(t, uint64(42), got.UpdatedBlock)
}

func TestPositionStore_Replace(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, store.Set(ctx, &domain.EncryptedPosition{
			StrategyID:   testStrategyID(1),
			Asset:        "assetA",
			Position:     testHandle(i),
			UpdatedBlock: uint64(i),
		}))
	}

	got, err := store.Get(ctx, testStrategyID(1), "assetA")
	require.NoError(t, err)
	assert.Equal(t, testHandle(3), got.Position)
	assert.Equal(t, uint64(3), got.UpdatedBlock)
}

func TestPositionStore_UnsetYieldsZeroHandle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	got, err := store.Get(ctx, testStrategyID(1), "assetA")
	require.NoError(t, err)
	assert.True(t, got.Position.IsZero())
	assert.Equal(t, testStrategyID(1), got.StrategyID)
	assert.Equal(t, "assetA", got.Asset)
}

func TestTradeDeltaStore_SetGetAndDefault(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeDeltaStore(pool)

	// Never computed: zero-equivalent handle, no error
	got, err := store.Get(ctx, testStrategyID(1), "assetA")
	require.NoError(t, err)
	assert.True(t, got.Delta.IsZero())

	require.NoError(t, store.Set(ctx, &domain.TradeDelta{
		StrategyID:    testStrategyID(1),
		Asset:         "assetA",
		Delta:         testHandle(7),
		ComputedBlock: 9,
	}))

	got, err = store.Get(ctx, testStrategyID(1), "assetA")
	require.NoError(t, err)
	assert.Equal(t, testHandle(7), got.Delta)
	assert.Equal(t, uint64(9), got.ComputedBlock)

	// Replace
	require.NoError(t, store.Set(ctx, &domain.TradeDelta{
		StrategyID:    testStrategyID(1),
		Asset:         "assetA",
		Delta:         testHandle(8),
		ComputedBlock: 12,
	}))
	got, err = store.Get(ctx, testStrategyID(1), "assetA")
	require.NoError(t, err)
	assert.Equal(t, testHandle(8), got.Delta)
}
