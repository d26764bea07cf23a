// Package domain defines the records the rebalancing engine operates on.
// Plaintext metadata lives here alongside opaque ciphertext handles; no
// secret value ever appears as a plain Go number.
package domain

import (
	"encoding/hex"

	"confidential-rebalancer/internal/fhe"
)

// StrategyID is the opaque 32-byte strategy identifier.
type StrategyID [32]byte

// String returns the hex encoding of the id.
func (id StrategyID) String() string {
	return hex.EncodeToString(id[:])
}

// ExecutionParams holds the confidential execution tuning of a strategy.
// Only the owner and the engine ever hold decryption/compute rights.
type ExecutionParams struct {
	ExecutionWindow fhe.Handle // blocks around the eligible instant
	SpreadBlocks    fhe.Handle // rounds to spread a rebalance over
	PriorityFee     fhe.Handle // fee budget for execution transactions
	MaxSlippage     fhe.Handle // basis-point slippage tolerance
}

// Strategy represents one rebalancing strategy.
// Corresponds to strategies table in PostgreSQL.
type Strategy struct {
	ID                 StrategyID    // PRIMARY KEY
	Owner              fhe.Principal // principal allowed to mutate and calculate
	Active             bool          // created active, may be deactivated, never removed
	Governance         bool          // true for governance-created strategies
	RebalanceFrequency uint64        // minimum blocks between executions
	LastExecutionBlock uint64        // 0 until first execution
	Params             ExecutionParams
	CreatedAt          int64 // record creation timestamp (ms)
}
