package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/fhe/mock"
	"confidential-rebalancer/internal/storage/memory"
)

const (
	testOwner      = fhe.Principal("owner-1")
	testExecutor   = fhe.Principal("executor-1")
	testGovernance = fhe.Principal("governance")
	testReporter   = fhe.Principal("compliance-1")
	testStranger   = fhe.Principal("stranger")
)

type testEnv struct {
	engine *Engine
	cop    *mock.Coprocessor
	clock  *ManualClock
	events *memory.ExecutionEventStore
}

func newTestEnv(t *testing.T, cooldown uint64) *testEnv {
	t.Helper()

	cop := mock.New()
	clock := NewManualClock(1)
	events := memory.NewExecutionEventStore()

	eng, err := New(Options{
		StrategyStore:       memory.NewStrategyStore(),
		AllocationStore:     memory.NewAllocationStore(),
		PositionStore:       memory.NewPositionStore(),
		TradeDeltaStore:     memory.NewTradeDeltaStore(),
		CoordinationStore:   memory.NewCoordinationStore(),
		GovernanceStore:     memory.NewGovernanceStore(),
		ComplianceStore:     memory.NewComplianceStore(),
		ExecutionEventStore: events,
		Coprocessor:         cop,
		Clock:               clock,
		Governance:          testGovernance,
		AuthorizedExecutors: []fhe.Principal{testExecutor},
		ExecutionCooldown:   cooldown,
		VoteThreshold:       2,
		Logger:              zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return &testEnv{engine: eng, cop: cop, clock: clock, events: events}
}

func testID(b byte) domain.StrategyID {
	var id domain.StrategyID
	id[0] = b
	return id
}

// enc encrypts a plaintext constant through the mock coprocessor.
func (env *testEnv) enc(t *testing.T, v int64) fhe.Handle {
	t.Helper()
	h, err := env.cop.EncryptConst(context.Background(), v)
	if err != nil {
		t.Fatalf("EncryptConst(%d) failed: %v", v, err)
	}
	return h
}

// decryptAs resolves a handle to plaintext on behalf of a principal.
func (env *testEnv) decryptAs(t *testing.T, h fhe.Handle, p fhe.Principal) int64 {
	t.Helper()
	v, err := env.cop.Decrypt(context.Background(), h, p)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	return v.Int64()
}

// createStrategy registers a strategy with placeholder execution params.
func (env *testEnv) createStrategy(t *testing.T, id domain.StrategyID, frequency uint64) {
	t.Helper()
	params := domain.ExecutionParams{
		ExecutionWindow: env.enc(t, 20),
		SpreadBlocks:    env.enc(t, 4),
		PriorityFee:     env.enc(t, 2),
		MaxSlippage:     env.enc(t, 500),
	}
	if err := env.engine.CreateStrategy(context.Background(), testOwner, id, frequency, params); err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}
}

func TestCreateStrategy_DuplicateID(t *testing.T) {
	env := newTestEnv(t, 0)
	id := testID(1)

	env.createStrategy(t, id, 5)

	params := domain.ExecutionParams{ExecutionWindow: env.enc(t, 20)}
	err := env.engine.CreateStrategy(context.Background(), testOwner, id, 5, params)
	if !errors.Is(err, ErrStrategyAlreadyExists) {
		t.Errorf("Expected ErrStrategyAlreadyExists, got %v", err)
	}
}

func TestOwnershipEnforcement(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(1)
	env.createStrategy(t, id, 5)

	target := env.enc(t, 5000)
	min := env.enc(t, 100)
	max := env.enc(t, 900)

	if err := env.engine.SetTargetAllocation(ctx, testStranger, id, "assetA", target, min, max); !errors.Is(err, ErrNotOwner) {
		t.Errorf("SetTargetAllocation: expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.SetEncryptedPosition(ctx, testStranger, id, "assetA", env.enc(t, 100)); !errors.Is(err, ErrNotOwner) {
		t.Errorf("SetEncryptedPosition: expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.CalculateRebalancing(ctx, testStranger, id); !errors.Is(err, ErrNotOwner) {
		t.Errorf("CalculateRebalancing: expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.EnableCrossPoolCoordination(ctx, testStranger, id, []string{"P1"}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("EnableCrossPoolCoordination: expected ErrNotOwner, got %v", err)
	}
}

func TestOperationsOnUnknownStrategy(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(9)

	if err := env.engine.CalculateRebalancing(ctx, testOwner, id); !errors.Is(err, ErrStrategyNotFound) {
		t.Errorf("CalculateRebalancing: expected ErrStrategyNotFound, got %v", err)
	}
	if err := env.engine.ExecuteRebalancing(ctx, testExecutor, id); !errors.Is(err, ErrStrategyNotFound) {
		t.Errorf("ExecuteRebalancing: expected ErrStrategyNotFound, got %v", err)
	}
	if _, err := env.engine.IsExecutionReady(ctx, id); !errors.Is(err, ErrStrategyNotFound) {
		t.Errorf("IsExecutionReady: expected ErrStrategyNotFound, got %v", err)
	}
}

func TestExecuteRebalancing_AuthorizedExecutorOnly(t *testing.T) {
	env := newTestEnv(t, 0)
	id := testID(1)
	env.createStrategy(t, id, 1)
	env.clock.SetBlock(2)

	if err := env.engine.ExecuteRebalancing(context.Background(), testStranger, id); !errors.Is(err, ErrNotAuthorizedExecutor) {
		t.Errorf("Expected ErrNotAuthorizedExecutor, got %v", err)
	}
	if err := env.engine.ExecuteRebalancing(context.Background(), testExecutor, id); err != nil {
		t.Errorf("Executor should succeed, got %v", err)
	}
}

func TestReadinessMonotonicity(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(1)
	env.createStrategy(t, id, 5)

	env.clock.SetBlock(6)
	ready, err := env.engine.IsExecutionReady(ctx, id)
	if err != nil || !ready {
		t.Fatalf("Expected ready at block 6, got ready=%v err=%v", ready, err)
	}

	if err := env.engine.ExecuteRebalancing(ctx, testExecutor, id); err != nil {
		t.Fatalf("ExecuteRebalancing failed: %v", err)
	}

	strat, err := env.engine.GetStrategy(ctx, id)
	if err != nil {
		t.Fatalf("GetStrategy failed: %v", err)
	}
	if strat.LastExecutionBlock != 6 {
		t.Errorf("Expected lastExecutionBlock=6, got %d", strat.LastExecutionBlock)
	}

	// Immediately after execution readiness drops.
	ready, _ = env.engine.IsExecutionReady(ctx, id)
	if ready {
		t.Error("Expected not ready immediately after execution")
	}

	// Ready again only after a full frequency interval.
	env.clock.SetBlock(10)
	if ready, _ = env.engine.IsExecutionReady(ctx, id); ready {
		t.Error("Expected not ready at block 10 (4 elapsed < 5)")
	}
	env.clock.SetBlock(11)
	if ready, _ = env.engine.IsExecutionReady(ctx, id); !ready {
		t.Error("Expected ready at block 11 (5 elapsed)")
	}
}

func TestReadiness_StaleWindow(t *testing.T) {
	env := newTestEnv(t, 0)
	id := testID(1)
	env.createStrategy(t, id, 2)

	// More than 10x the frequency past due: the window went stale.
	env.clock.SetBlock(21)
	ready, err := env.engine.IsExecutionReady(context.Background(), id)
	if err != nil {
		t.Fatalf("IsExecutionReady failed: %v", err)
	}
	if ready {
		t.Error("Expected stale strategy to be not ready (21 elapsed > 20)")
	}
}

func TestShouldSpreadExecution(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(1)
	env.createStrategy(t, id, 10)

	env.clock.SetBlock(10)
	if err := env.engine.ExecuteRebalancing(ctx, testExecutor, id); err != nil {
		t.Fatalf("ExecuteRebalancing failed: %v", err)
	}

	// Opening fifth of the cycle: blocks 10 and 11 (elapsed 0 and 1 < 2).
	spread, err := env.engine.ShouldSpreadExecution(ctx, id)
	if err != nil || !spread {
		t.Errorf("Expected spread at elapsed 0, got spread=%v err=%v", spread, err)
	}
	env.clock.SetBlock(12)
	if spread, _ = env.engine.ShouldSpreadExecution(ctx, id); spread {
		t.Error("Expected no spread at elapsed 2")
	}
}

func TestExecuteRebalancing_SameBlockRule(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	a, b := testID(1), testID(2)
	env.createStrategy(t, a, 1)
	env.createStrategy(t, b, 1)

	env.clock.SetBlock(3)
	if err := env.engine.ExecuteRebalancing(ctx, testExecutor, a); err != nil {
		t.Fatalf("First execution failed: %v", err)
	}

	// Same caller, same block: allowed.
	if err := env.engine.ExecuteRebalancing(ctx, testExecutor, b); err != nil {
		t.Errorf("Same-block execution should pass, got %v", err)
	}

	// Same caller, later block: rejected to block delayed followups.
	env.clock.SetBlock(4)
	err := env.engine.ExecuteRebalancing(ctx, testExecutor, b)
	if !errors.Is(err, ErrMevProtectionViolation) {
		t.Errorf("Expected ErrMevProtectionViolation, got %v", err)
	}
}

func TestExecuteRebalancing_Cooldown(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()
	a, b := testID(1), testID(2)
	env.createStrategy(t, a, 1)
	env.createStrategy(t, b, 1)

	env.clock.SetBlock(2)
	if err := env.engine.ExecuteRebalancing(ctx, testExecutor, a); err != nil {
		t.Fatalf("First execution failed: %v", err)
	}

	// Inside the cooldown the throttle fires before the same-block rule.
	env.clock.SetBlock(4)
	if err := env.engine.ExecuteRebalancing(ctx, testExecutor, b); !errors.Is(err, ErrCooldownNotMet) {
		t.Errorf("Expected ErrCooldownNotMet, got %v", err)
	}
}

func TestExecuteRebalancing_LockHeld(t *testing.T) {
	env := newTestEnv(t, 0)
	id := testID(1)
	env.createStrategy(t, id, 1)
	env.clock.SetBlock(2)

	if !env.engine.guard.acquire(id) {
		t.Fatal("guard acquire failed")
	}
	defer env.engine.guard.release(id)

	err := env.engine.ExecuteRebalancing(context.Background(), testExecutor, id)
	if !errors.Is(err, ErrExecutionInProgress) {
		t.Errorf("Expected ErrExecutionInProgress, got %v", err)
	}
}

func TestDeactivateStrategy(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id := testID(1)
	env.createStrategy(t, id, 5)

	if err := env.engine.DeactivateStrategy(ctx, testStranger, id); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.DeactivateStrategy(ctx, testOwner, id); err != nil {
		t.Fatalf("DeactivateStrategy failed: %v", err)
	}

	strat, err := env.engine.GetStrategy(ctx, id)
	if err != nil {
		t.Fatalf("GetStrategy failed: %v", err)
	}
	if strat.Active {
		t.Error("Expected strategy inactive after deactivation")
	}
}
