// Package engine implements the confidential rebalancing decision engine.
// All secret state stays as ciphertext handles; the engine requests
// arithmetic from the coprocessor and never materializes plaintext.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/idhash"
	"confidential-rebalancer/internal/observability"
	"confidential-rebalancer/internal/storage"
)

// DefaultVoteThreshold is the number of affirmative votes that triggers a
// governance strategy's one-shot execution.
const DefaultVoteThreshold = 3

// Engine is the confidential rebalancing decision engine. All public
// operations run to completion atomically: they either fully succeed or
// abort with no partial mutation.
type Engine struct {
	strategies  storage.StrategyStore
	allocations storage.AllocationStore
	positions   storage.PositionStore
	deltas      storage.TradeDeltaStore
	coord       storage.CoordinationStore
	gov         storage.GovernanceStore
	compliance  storage.ComplianceStore
	events      storage.ExecutionEventStore

	cop   fhe.Coprocessor
	clock BlockClock
	guard *executionGuard

	governance    fhe.Principal
	executors     map[fhe.Principal]bool
	cooldown      uint64
	voteThreshold int

	metrics *observability.Metrics
	log     zerolog.Logger
}

// Options for creating an Engine.
type Options struct {
	// Required stores
	StrategyStore       storage.StrategyStore
	AllocationStore     storage.AllocationStore
	PositionStore       storage.PositionStore
	TradeDeltaStore     storage.TradeDeltaStore
	CoordinationStore   storage.CoordinationStore
	GovernanceStore     storage.GovernanceStore
	ComplianceStore     storage.ComplianceStore
	ExecutionEventStore storage.ExecutionEventStore

	// Required collaborators
	Coprocessor fhe.Coprocessor
	Clock       BlockClock

	// Principals
	Governance          fhe.Principal
	AuthorizedExecutors []fhe.Principal

	// ExecutionCooldown is the minimum block gap between explicit
	// executions by the same caller. May be zero.
	ExecutionCooldown uint64

	// VoteThreshold overrides DefaultVoteThreshold when > 0.
	VoteThreshold int

	// Optional
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// New creates a new Engine.
func New(opts Options) (*Engine, error) {
	if opts.StrategyStore == nil || opts.AllocationStore == nil ||
		opts.PositionStore == nil || opts.TradeDeltaStore == nil ||
		opts.CoordinationStore == nil || opts.GovernanceStore == nil ||
		opts.ComplianceStore == nil || opts.ExecutionEventStore == nil {
		return nil, fmt.Errorf("engine: all stores are required")
	}
	if opts.Coprocessor == nil {
		return nil, fmt.Errorf("engine: coprocessor is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("engine: block clock is required")
	}

	threshold := opts.VoteThreshold
	if threshold <= 0 {
		threshold = DefaultVoteThreshold
	}

	executors := make(map[fhe.Principal]bool, len(opts.AuthorizedExecutors))
	for _, p := range opts.AuthorizedExecutors {
		executors[p] = true
	}

	return &Engine{
		strategies:    opts.StrategyStore,
		allocations:   opts.AllocationStore,
		positions:     opts.PositionStore,
		deltas:        opts.TradeDeltaStore,
		coord:         opts.CoordinationStore,
		gov:           opts.GovernanceStore,
		compliance:    opts.ComplianceStore,
		events:        opts.ExecutionEventStore,
		cop:           opts.Coprocessor,
		clock:         opts.Clock,
		guard:         newExecutionGuard(),
		governance:    opts.Governance,
		executors:     executors,
		cooldown:      opts.ExecutionCooldown,
		voteThreshold: threshold,
		metrics:       opts.Metrics,
		log:           opts.Logger,
	}, nil
}

func (e *Engine) isExecutor(p fhe.Principal) bool {
	return e.executors[p]
}

// getOwned loads the strategy and verifies caller is its owner.
func (e *Engine) getOwned(ctx context.Context, caller fhe.Principal, id domain.StrategyID) (*domain.Strategy, error) {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	if strat.Owner != caller {
		return nil, ErrNotOwner
	}
	return strat, nil
}

// recordEvent appends an audit event; sink failures are logged, not fatal,
// since audit is advisory and the mutation already committed.
func (e *Engine) recordEvent(ctx context.Context, ev *domain.ExecutionEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	if ev.Block == 0 {
		ev.Block = e.clock.CurrentBlock()
	}
	if err := e.events.Insert(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("strategy", ev.StrategyID).Str("kind", ev.Kind).
			Msg("audit event dropped")
	}
}

// recordEvents appends a batch of audit events in one sink round trip.
// Same advisory policy as recordEvent.
func (e *Engine) recordEvents(ctx context.Context, evs []*domain.ExecutionEvent) {
	if len(evs) == 0 {
		return
	}
	now := time.Now().UnixMilli()
	for _, ev := range evs {
		ev.Timestamp = now
		if ev.Block == 0 {
			ev.Block = e.clock.CurrentBlock()
		}
	}
	if err := e.events.InsertBulk(ctx, evs); err != nil {
		e.log.Warn().Err(err).Int("events", len(evs)).
			Msg("audit event batch dropped")
	}
}

// seal attaches the engine's standard policy to a handle (self compute
// rights plus owner decryption) and applies it. Extra principals, such as a
// compliance reporter, are appended when present.
func (e *Engine) seal(ctx context.Context, h fhe.Handle, owner fhe.Principal, extra ...fhe.Principal) error {
	policy := fhe.Policy{Self: true, Principals: append([]fhe.Principal{owner}, extra...)}
	if err := fhe.Sealed(h, policy).Apply(ctx, e.cop); err != nil {
		return fmt.Errorf("apply grant policy: %w", err)
	}
	return nil
}

// CreateStrategy registers a new strategy owned by caller. The execution
// params arrive as client-side encrypted handles; the engine grants itself
// compute rights and the owner decryption rights over them.
func (e *Engine) CreateStrategy(ctx context.Context, caller fhe.Principal, id domain.StrategyID, frequency uint64, params domain.ExecutionParams) error {
	return e.createStrategy(ctx, caller, id, frequency, params, false)
}

func (e *Engine) createStrategy(ctx context.Context, owner fhe.Principal, id domain.StrategyID, frequency uint64, params domain.ExecutionParams, governance bool) error {
	strat := &domain.Strategy{
		ID:                 id,
		Owner:              owner,
		Active:             true,
		Governance:         governance,
		RebalanceFrequency: frequency,
		Params:             params,
		CreatedAt:          time.Now().UnixMilli(),
	}

	if err := e.strategies.Insert(ctx, strat); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ErrStrategyAlreadyExists
		}
		return fmt.Errorf("insert strategy: %w", err)
	}

	for _, h := range []fhe.Handle{
		params.ExecutionWindow, params.SpreadBlocks, params.PriorityFee, params.MaxSlippage,
	} {
		if err := e.seal(ctx, h, owner); err != nil {
			return err
		}
	}

	e.log.Info().Str("strategy", idhash.ShortID(id)).Uint64("frequency", frequency).
		Bool("governance", governance).Msg("strategy created")
	if e.metrics != nil {
		e.metrics.StrategiesCreated.Inc()
	}
	return nil
}

// SetTargetAllocation sets or replaces the allocation entry for an asset.
// Owner only. At most one entry per (strategy, asset) ever exists.
func (e *Engine) SetTargetAllocation(ctx context.Context, caller fhe.Principal, id domain.StrategyID, asset string, encTarget, encMin, encMax fhe.Handle) error {
	strat, err := e.getOwned(ctx, caller, id)
	if err != nil {
		return err
	}

	alloc := &domain.TargetAllocation{
		StrategyID:       id,
		Asset:            asset,
		TargetPercentage: encTarget,
		MinThreshold:     encMin,
		MaxThreshold:     encMax,
		Active:           true,
		UpdatedAt:        time.Now().UnixMilli(),
	}
	if err := e.allocations.Upsert(ctx, alloc); err != nil {
		return fmt.Errorf("upsert allocation: %w", err)
	}

	for _, h := range []fhe.Handle{encTarget, encMin, encMax} {
		if err := e.seal(ctx, h, strat.Owner); err != nil {
			return err
		}
	}
	return nil
}

// SetEncryptedPosition explicitly sets a strategy's holding of an asset.
// Owner only.
func (e *Engine) SetEncryptedPosition(ctx context.Context, caller fhe.Principal, id domain.StrategyID, asset string, encPosition fhe.Handle) error {
	strat, err := e.getOwned(ctx, caller, id)
	if err != nil {
		return err
	}

	pos := &domain.EncryptedPosition{
		StrategyID:   id,
		Asset:        asset,
		Position:     encPosition,
		UpdatedBlock: e.clock.CurrentBlock(),
	}
	if err := e.positions.Set(ctx, pos); err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	return e.seal(ctx, encPosition, strat.Owner)
}

// CalculateRebalancing recomputes the strategy's trade deltas. Owner only,
// idempotent: with no intervening state change repeat calls produce the same
// delta ciphertexts.
func (e *Engine) CalculateRebalancing(ctx context.Context, caller fhe.Principal, id domain.StrategyID) error {
	strat, err := e.getOwned(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := e.computeTradeDeltas(ctx, strat); err != nil {
		return err
	}
	e.recordEvent(ctx, &domain.ExecutionEvent{
		StrategyID: id.String(),
		Kind:       domain.EventKindCalculation,
		Caller:     string(caller),
	})
	return nil
}

// ExecuteRebalancing performs an explicit execution. Authorized executors
// only, subject to the execution lock, the same-block rule, the cooldown,
// and the plaintext readiness window.
func (e *Engine) ExecuteRebalancing(ctx context.Context, caller fhe.Principal, id domain.StrategyID) error {
	if !e.isExecutor(caller) {
		return ErrNotAuthorizedExecutor
	}

	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrStrategyNotFound
		}
		return fmt.Errorf("load strategy: %w", err)
	}

	if !e.guard.acquire(id) {
		e.reject("lock")
		return ErrExecutionInProgress
	}
	defer e.guard.release(id)

	block := e.clock.CurrentBlock()

	// Same-block discipline: a caller's executions must all land in the
	// block of its first recorded execution. Out-of-band followup
	// transactions in later blocks are rejected.
	if last := e.guard.callerLastBlock(caller); last != 0 && block != last {
		// The cooldown, when configured, takes precedence over the
		// same-block rule so throttled callers see the retry signal.
		if e.cooldown > 0 && block <= last+e.cooldown {
			e.reject("cooldown")
			return ErrCooldownNotMet
		}
		e.reject("mev")
		return ErrMevProtectionViolation
	}

	if !readyAt(strat, block) {
		e.reject("not_ready")
		return ErrNotReadyForExecution
	}

	if err := e.computeTradeDeltas(ctx, strat); err != nil {
		return err
	}

	if err := e.strategies.SetLastExecutionBlock(ctx, id, block); err != nil {
		return fmt.Errorf("update last execution block: %w", err)
	}
	e.guard.recordCallerExecution(caller, block)

	e.recordEvent(ctx, &domain.ExecutionEvent{
		StrategyID: id.String(),
		Kind:       domain.EventKindExecution,
		Caller:     string(caller),
		Block:      block,
	})
	e.log.Info().Str("strategy", idhash.ShortID(id)).Uint64("block", block).
		Str("caller", string(caller)).Msg("rebalancing executed")
	if e.metrics != nil {
		e.metrics.ExecutionsTotal.Inc()
	}
	return nil
}

// DeactivateStrategy flips the strategy inactive. Owner or governance.
// There is no terminal state: a strategy is never removed.
func (e *Engine) DeactivateStrategy(ctx context.Context, caller fhe.Principal, id domain.StrategyID) error {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrStrategyNotFound
		}
		return fmt.Errorf("load strategy: %w", err)
	}
	if caller != strat.Owner && caller != e.governance {
		return ErrNotOwner
	}
	if err := e.strategies.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate strategy: %w", err)
	}
	return nil
}

func (e *Engine) reject(reason string) {
	if e.metrics != nil {
		e.metrics.ExecutionRejections.WithLabelValues(reason).Inc()
	}
}

// GetStrategy returns the strategy's plaintext metadata and param handles.
func (e *Engine) GetStrategy(ctx context.Context, id domain.StrategyID) (*domain.Strategy, error) {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	return strat, nil
}

// GetTargetAllocations returns the strategy's allocation entries.
func (e *Engine) GetTargetAllocations(ctx context.Context, id domain.StrategyID) ([]*domain.TargetAllocation, error) {
	return e.allocations.GetByStrategy(ctx, id)
}

// GetEncryptedPosition returns the opaque position handle for an asset.
func (e *Engine) GetEncryptedPosition(ctx context.Context, id domain.StrategyID, asset string) (fhe.Handle, error) {
	pos, err := e.positions.Get(ctx, id, asset)
	if err != nil {
		return fhe.Handle{}, err
	}
	return pos.Position, nil
}

// GetTradeDelta returns the opaque delta handle most recently computed for
// an asset.
func (e *Engine) GetTradeDelta(ctx context.Context, id domain.StrategyID, asset string) (fhe.Handle, error) {
	d, err := e.deltas.Get(ctx, id, asset)
	if err != nil {
		return fhe.Handle{}, err
	}
	return d.Delta, nil
}
