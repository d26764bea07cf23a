package engine

import (
	"context"
	"errors"
	"testing"
)

func TestCheckCrossPoolCoordination_NonMemberPool(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(1)
	env.createStrategy(t, id, 5)
	if err := env.engine.EnableCrossPoolCoordination(ctx, testOwner, id, []string{"P1", "P2"}); err != nil {
		t.Fatalf("EnableCrossPoolCoordination failed: %v", err)
	}

	h, err := env.engine.CheckCrossPoolCoordination(ctx, id, "P3")
	if err != nil {
		t.Fatalf("CheckCrossPoolCoordination failed: %v", err)
	}
	// Grant out-of-band so the test can inspect the plaintext.
	if err := env.cop.Grant(ctx, h, testOwner); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if got := env.decryptAs(t, h, testOwner); got != 0 {
		t.Errorf("Expected encrypted false for a non-member pool, got %d", got)
	}
}

func TestCheckCrossPoolCoordination_MemberPoolGetsTimingSignal(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(1)
	env.createStrategy(t, id, 5)
	if err := env.engine.EnableCrossPoolCoordination(ctx, testOwner, id, []string{"P1"}); err != nil {
		t.Fatalf("EnableCrossPoolCoordination failed: %v", err)
	}

	// ExecutionWindow is 20 and elapsed is small, so the timing signal is
	// an encrypted true, sealed for the owner.
	env.clock.SetBlock(3)
	h, err := env.engine.CheckCrossPoolCoordination(ctx, id, "P1")
	if err != nil {
		t.Fatalf("CheckCrossPoolCoordination failed: %v", err)
	}
	if got := env.decryptAs(t, h, testOwner); got != 1 {
		t.Errorf("Expected encrypted true timing signal, got %d", got)
	}
}

func TestCheckCrossPoolCoordination_DisabledPassesThrough(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(1)
	env.createStrategy(t, id, 5)

	// No coordination set: any pool reaches the timing check.
	if _, err := env.engine.CheckCrossPoolCoordination(ctx, id, "anything"); err != nil {
		t.Fatalf("CheckCrossPoolCoordination failed: %v", err)
	}

	if _, err := env.engine.CheckCrossPoolCoordination(ctx, testID(9), "P1"); !errors.Is(err, ErrStrategyNotFound) {
		t.Errorf("Expected ErrStrategyNotFound, got %v", err)
	}
}
