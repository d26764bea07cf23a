package engine

import "errors"

// Authorization errors, checked at entry. The whole operation aborts with no
// partial state change.
var (
	ErrNotOwner              = errors.New("engine: caller is not the strategy owner")
	ErrNotAuthorizedExecutor = errors.New("engine: caller is not an authorized executor")
	ErrNotGovernance         = errors.New("engine: caller is not the governance principal")
	ErrUnauthorizedReporter  = errors.New("engine: caller may not access compliance reports")
)

// State errors.
var (
	ErrStrategyAlreadyExists  = errors.New("engine: strategy id already exists")
	ErrStrategyNotFound       = errors.New("engine: strategy not found")
	ErrAlreadyVoted           = errors.New("engine: voter has already voted")
	ErrNotGovernanceStrategy  = errors.New("engine: strategy is not a governance strategy")
	ErrGovernanceTriggerSpent = errors.New("engine: governance trigger already executed")
)

// Readiness errors. The execution path aborts, existing positions and
// allocations stay untouched; callers retry later.
var (
	ErrNotReadyForExecution   = errors.New("engine: strategy not ready for execution")
	ErrCooldownNotMet         = errors.New("engine: execution cooldown not met")
	ErrMevProtectionViolation = errors.New("engine: same-block execution rule violated")
	ErrExecutionInProgress    = errors.New("engine: strategy execution already in progress")
)
