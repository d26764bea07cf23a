package idhash

import (
	"github.com/mr-tron/base58"

	"confidential-rebalancer/internal/domain"
)

// ShortID returns a base58 prefix of the id for logs and reports.
func ShortID(id domain.StrategyID) string {
	return base58.Encode(id[:8])
}
