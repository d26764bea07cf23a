package memory

import (
	"context"
	"errors"
	"testing"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/storage"
)

func testHandle(b byte) fhe.Handle {
	var h fhe.Handle
	h[0] = b
	return h
}

func TestAllocationStore_UpsertAndGet(t *testing.T) {
	store := NewAllocationStore()
	ctx := context.Background()

	a := &domain.TargetAllocation{
		StrategyID:       strategyID(1),
		Asset:            "assetA",
		TargetPercentage: testHandle(1),
		Active:           true,
		UpdatedAt:        1704067200000,
	}

	if err := store.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := store.GetByStrategy(ctx, strategyID(1))
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 allocation, got %d", len(result))
	}
	if result[0].Asset != "assetA" || result[0].TargetPercentage != testHandle(1) {
		t.Error("Allocation mismatch")
	}
}

func TestAllocationStore_UpsertUpdatesInPlace(t *testing.T) {
	store := NewAllocationStore()
	ctx := context.Background()

	assets := []string{"assetA", "assetB", "assetC"}
	for i, asset := range assets {
		a := &domain.TargetAllocation{
			StrategyID:       strategyID(1),
			Asset:            asset,
			TargetPercentage: testHandle(byte(i + 1)),
			Active:           true,
		}
		if err := store.Upsert(ctx, a); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	// Update the middle entry
	if err := store.Upsert(ctx, &domain.TargetAllocation{
		StrategyID:       strategyID(1),
		Asset:            "assetB",
		TargetPercentage: testHandle(9),
		Active:           false,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := store.GetByStrategy(ctx, strategyID(1))
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 allocations, got %d", len(result))
	}

	// Order preserved, entry replaced
	if result[1].Asset != "assetB" {
		t.Errorf("Expected assetB in slot 1, got %s", result[1].Asset)
	}
	if result[1].TargetPercentage != testHandle(9) || result[1].Active {
		t.Error("Expected updated assetB entry")
	}
}

func TestAllocationStore_StrategyIsolation(t *testing.T) {
	store := NewAllocationStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, &domain.TargetAllocation{StrategyID: strategyID(1), Asset: "assetA"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := store.GetByStrategy(ctx, strategyID(2))
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Expected no allocations for another strategy, got %d", len(result))
	}
}

func TestAllocationStore_InvalidInput(t *testing.T) {
	store := NewAllocationStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Upsert(ctx, &domain.TargetAllocation{StrategyID: strategyID(1)}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty asset, got %v", err)
	}
}
