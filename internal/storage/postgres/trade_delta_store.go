package postgres

import (
	"context"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// TradeDeltaStore implements storage.TradeDeltaStore using PostgreSQL.
type TradeDeltaStore struct {
	pool *Pool
}

// NewTradeDeltaStore creates a new TradeDeltaStore.
func NewTradeDeltaStore(pool *Pool) *TradeDeltaStore {
	return &TradeDeltaStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeDeltaStore = (*TradeDeltaStore)(nil)

// Set stores the delta, replacing any previous one.
func (s *TradeDeltaStore) Set(ctx context.Context, d *domain.TradeDelta) error {
	if d == nil || d.Asset == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_deltas (strategy_id, asset, delta, computed_block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (strategy_id, asset) DO UPDATE SET
			delta = EXCLUDED.delta,
			computed_block = EXCLUDED.computed_block
	`

	_, err := s.pool.Exec(ctx, query,
		d.StrategyID[:], d.Asset, d.Delta[:], int64(d.ComputedBlock))
	if err != nil {
		return fmt.Errorf("set trade delta: %w", err)
	}
	return nil
}

// Get retrieves the delta for (strategy, asset). A never-computed asset
// yields the zero-equivalent handle.
func (s *TradeDeltaStore) Get(ctx context.Context, id domain.StrategyID, asset string) (*domain.TradeDelta, error) {
	query := `
		SELECT delta, computed_block
		FROM trade_deltas
		WHERE strategy_id = $1 AND asset = $2
	`

	var (
		deltaBytes []byte
		block      int64
	)
	err := s.pool.QueryRow(ctx, query, id[:], asset).Scan(&deltaBytes, &block)
	if err != nil {
		if isNotFoundError(err) {
			return &domain.TradeDelta{StrategyID: id, Asset: asset}, nil
		}
		return nil, fmt.Errorf("get trade delta: %w", err)
	}

	return &domain.TradeDelta{
		StrategyID:    id,
		Asset:         asset,
		Delta:         handleFromBytes(deltaBytes),
		ComputedBlock: uint64(block),
	}, nil
}
