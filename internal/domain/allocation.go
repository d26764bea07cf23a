package domain

import "confidential-rebalancer/internal/fhe"

// TargetAllocation represents one asset's target weight within a strategy.
// At most one entry exists per (strategy, asset): setting an allocation for
// an asset that already has one updates it in place.
// Corresponds to target_allocations table in PostgreSQL.
type TargetAllocation struct {
	StrategyID       StrategyID
	Asset            string     // asset identifier
	TargetPercentage fhe.Handle // encrypted basis points, 0-10000
	MinThreshold     fhe.Handle // encrypted deviation floor (basis points)
	MaxThreshold     fhe.Handle // encrypted deviation ceiling (basis points)
	Active           bool
	UpdatedAt        int64 // record update timestamp (ms)
}
