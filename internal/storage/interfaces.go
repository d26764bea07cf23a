package storage

import (
	"context"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
)

// StrategyStore provides access to strategies storage. Strategies are never
// deleted; deactivation flips the Active flag in place.
type StrategyStore interface {
	// Insert adds a new strategy. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, s *domain.Strategy) error

	// GetByID retrieves a strategy by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id domain.StrategyID) (*domain.Strategy, error)

	// SetActive updates the active flag. Returns ErrNotFound if not exists.
	SetActive(ctx context.Context, id domain.StrategyID, active bool) error

	// SetLastExecutionBlock records the block of the latest execution.
	// Returns ErrNotFound if not exists.
	SetLastExecutionBlock(ctx context.Context, id domain.StrategyID, block uint64) error

	// List retrieves all strategies, ordered by creation time ASC.
	List(ctx context.Context) ([]*domain.Strategy, error)
}

// AllocationStore provides access to target_allocations storage.
type AllocationStore interface {
	// Upsert inserts the allocation, or updates it in place if the
	// (strategy, asset) pair already has an entry.
	Upsert(ctx context.Context, a *domain.TargetAllocation) error

	// GetByStrategy retrieves all allocation entries for a strategy,
	// ordered by first insertion.
	GetByStrategy(ctx context.Context, id domain.StrategyID) ([]*domain.TargetAllocation, error)
}

// PositionStore provides access to encrypted_positions storage. Reading an
// asset that was never set returns a position holding the zero-equivalent
// handle, not an error.
type PositionStore interface {
	// Set stores the position for (strategy, asset), replacing any previous one.
	Set(ctx context.Context, p *domain.EncryptedPosition) error

	// Get retrieves the position for (strategy, asset).
	Get(ctx context.Context, id domain.StrategyID, asset string) (*domain.EncryptedPosition, error)
}

// TradeDeltaStore provides access to trade_deltas storage. Deltas are a
// cache of the most recent calculation pass; reads of never-computed assets
// return the zero-equivalent handle.
type TradeDeltaStore interface {
	// Set stores the delta for (strategy, asset), replacing any previous one.
	Set(ctx context.Context, d *domain.TradeDelta) error

	// Get retrieves the delta for (strategy, asset).
	Get(ctx context.Context, id domain.StrategyID, asset string) (*domain.TradeDelta, error)
}

// CoordinationStore provides access to cross-pool coordination state.
// The reverse index tolerates duplicate enrollments: consumers iterate and
// check membership rather than assuming uniqueness.
type CoordinationStore interface {
	// SetPools replaces the strategy's coordination set and appends the
	// strategy to each pool's reverse index.
	SetPools(ctx context.Context, id domain.StrategyID, pools []string) error

	// GetSet retrieves the strategy's coordination set. A strategy that was
	// never enrolled yields an empty, disabled set.
	GetSet(ctx context.Context, id domain.StrategyID) (*domain.CoordinationSet, error)

	// GetStrategiesForPool retrieves strategy ids enrolled for a pool.
	// May contain duplicates after re-registration.
	GetStrategiesForPool(ctx context.Context, poolID string) ([]domain.StrategyID, error)
}

// GovernanceStore provides access to governance voting state.
type GovernanceStore interface {
	// RecordVote records an affirmative vote by voter and returns the new
	// vote count. Returns ErrDuplicateKey if the voter already voted.
	RecordVote(ctx context.Context, id domain.StrategyID, voter fhe.Principal) (int, error)

	// Get retrieves the governance state for a strategy. A strategy with no
	// votes yields an empty state.
	Get(ctx context.Context, id domain.StrategyID) (*domain.GovernanceState, error)

	// MarkExecuted flags the one-shot governance trigger as spent.
	MarkExecuted(ctx context.Context, id domain.StrategyID) error
}

// ComplianceStore provides access to per-strategy compliance reporters.
type ComplianceStore interface {
	// SetReporter enables compliance reporting for a strategy.
	SetReporter(ctx context.Context, id domain.StrategyID, reporter fhe.Principal) error

	// GetReporter retrieves the reporter. Returns ErrNotFound if reporting
	// was never enabled.
	GetReporter(ctx context.Context, id domain.StrategyID) (fhe.Principal, error)
}

// ExecutionEventStore provides access to the append-only audit sink.
type ExecutionEventStore interface {
	// Insert appends an audit event.
	Insert(ctx context.Context, e *domain.ExecutionEvent) error

	// InsertBulk appends multiple audit events in one batch. Either all
	// events are appended or none are.
	InsertBulk(ctx context.Context, events []*domain.ExecutionEvent) error

	// GetByStrategy retrieves up to limit events for a strategy, newest
	// first. limit <= 0 means no limit.
	GetByStrategy(ctx context.Context, strategyID string, limit int) ([]*domain.ExecutionEvent, error)
}
