package domain

import "confidential-rebalancer/internal/fhe"

// EncryptedPosition is a strategy's current holding of one asset.
// A position that was never set is the zero-equivalent ciphertext, not an
// error. Corresponds to encrypted_positions table in PostgreSQL.
type EncryptedPosition struct {
	StrategyID   StrategyID
	Asset        string
	Position     fhe.Handle // opaque ciphertext of the holding
	UpdatedBlock uint64     // block of the last engine or owner update
}

// TradeDelta is the most recent (target - current) adjustment for one asset
// under one strategy, conditionally zeroed when rebalancing is not
// triggered. It is a cache: recomputed on every calculation pass, never a
// historical log.
type TradeDelta struct {
	StrategyID    StrategyID
	Asset         string
	Delta         fhe.Handle // opaque ciphertext of the signed adjustment
	ComputedBlock uint64
}
