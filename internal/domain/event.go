package domain

// Execution event kinds recorded in the audit sink.
const (
	EventKindPreSwap       = "PRE_SWAP"
	EventKindPostSwap      = "POST_SWAP"
	EventKindCalculation   = "CALCULATION"
	EventKindExecution     = "EXECUTION"
	EventKindGovernance    = "GOVERNANCE_TRIGGER"
	EventKindLockContended = "LOCK_CONTENDED"
)

// ExecutionEvent is one append-only audit record of engine activity.
// Ciphertexts are referenced by handle only; the sink never sees plaintext.
// Corresponds to execution_events table in ClickHouse.
type ExecutionEvent struct {
	StrategyID string // hex strategy id
	Kind       string // one of the EventKind constants
	Caller     string // invoking principal, empty for hook-driven events
	PoolID     string // triggering pool, empty for explicit calls
	Asset      string // touched asset, empty when strategy-wide
	Block      uint64 // block height at the time of the event
	HandleRef  string // short form of the produced ciphertext handle
	Timestamp  int64  // Unix timestamp in milliseconds
}
