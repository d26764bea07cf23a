package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

func TestExecutionEventStore_InsertAndGet(t *testing.T) {
	store := NewExecutionEventStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &domain.ExecutionEvent{
			StrategyID: "strat-1",
			Kind:       domain.EventKindCalculation,
			Caller:     "owner-1",
			Block:      uint64(i + 1),
			Timestamp:  int64(1000 * (i + 1)),
		}
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByStrategy(ctx, "strat-1", 0)
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(result) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(result))
	}

	// Newest first
	if result[0].Block != 5 || result[4].Block != 1 {
		t.Error("Expected newest-first ordering")
	}
}

func TestExecutionEventStore_Limit(t *testing.T) {
	store := NewExecutionEventStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		e := &domain.ExecutionEvent{
			StrategyID: "strat-1",
			Kind:       domain.EventKindExecution,
			Block:      uint64(i + 1),
		}
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByStrategy(ctx, "strat-1", 3)
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(result))
	}
	if result[0].Block != 10 {
		t.Errorf("Expected newest event first, got block %d", result[0].Block)
	}
}

func TestExecutionEventStore_StrategyIsolation(t *testing.T) {
	store := NewExecutionEventStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e := &domain.ExecutionEvent{
			StrategyID: fmt.Sprintf("strat-%d", i%2),
			Kind:       domain.EventKindPreSwap,
			Block:      uint64(i + 1),
		}
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByStrategy(ctx, "strat-0", 0)
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 events for strat-0, got %d", len(result))
	}
}

func TestExecutionEventStore_InsertBulk(t *testing.T) {
	store := NewExecutionEventStore()
	ctx := context.Background()

	batch := []*domain.ExecutionEvent{
		{StrategyID: "strat-1", Kind: domain.EventKindPostSwap, Asset: "assetA", Block: 7, Timestamp: 1000},
		{StrategyID: "strat-1", Kind: domain.EventKindPostSwap, Asset: "assetB", Block: 7, Timestamp: 1000},
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByStrategy(ctx, "strat-1", 0)
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(result))
	}

	// An invalid entry rejects the whole batch.
	bad := []*domain.ExecutionEvent{
		{StrategyID: "strat-1", Kind: domain.EventKindPostSwap},
		{StrategyID: "strat-1"},
	}
	if err := store.InsertBulk(ctx, bad); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	result, _ = store.GetByStrategy(ctx, "strat-1", 0)
	if len(result) != 2 {
		t.Errorf("Expected batch rejected atomically, got %d events", len(result))
	}

	// Empty batch is a no-op.
	if err := store.InsertBulk(ctx, nil); err != nil {
		t.Errorf("Expected nil for empty batch, got %v", err)
	}
}

func TestExecutionEventStore_InvalidInput(t *testing.T) {
	store := NewExecutionEventStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.ExecutionEvent{StrategyID: "strat-1"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty kind, got %v", err)
	}
}
