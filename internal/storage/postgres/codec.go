package postgres

import (
	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
)

// Ciphertext handles and strategy ids are fixed 32-byte values stored as
// BYTEA. Shorter column values (including empty) decode to the
// zero-equivalent handle.

func handleFromBytes(b []byte) fhe.Handle {
	var h fhe.Handle
	copy(h[:], b)
	return h
}

func strategyIDFromBytes(b []byte) domain.StrategyID {
	var id domain.StrategyID
	copy(id[:], b)
	return id
}
