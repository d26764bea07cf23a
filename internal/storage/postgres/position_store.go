package postgres

import (
	"context"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Set stores the position, replacing any previous one.
func (s *PositionStore) Set(ctx context.Context, p *domain.EncryptedPosition) error {
	if p == nil || p.Asset == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO encrypted_positions (strategy_id, asset, position, updated_block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (strategy_id, asset) DO UPDATE SET
			position = EXCLUDED.position,
			updated_block = EXCLUDED.updated_block
	`

	_, err := s.pool.Exec(ctx, query,
		p.StrategyID[:], p.Asset, p.Position[:], int64(p.UpdatedBlock))
	if err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	return nil
}

// Get retrieves the position for (strategy, asset). An asset that was never
// set yields the zero-equivalent handle.
func (s *PositionStore) Get(ctx context.Context, id domain.StrategyID, asset string) (*domain.EncryptedPosition, error) {
	query := `
		SELECT position, updated_block
		FROM encrypted_positions
		WHERE strategy_id = $1 AND asset = $2
	`

	var (
		posBytes []byte
		block    int64
	)
	err := s.pool.QueryRow(ctx, query, id[:], asset).Scan(&posBytes, &block)
	if err != nil {
		if isNotFoundError(err) {
			return &domain.EncryptedPosition{StrategyID: id, Asset: asset}, nil
		}
		return nil, fmt.Errorf("get position: %w", err)
	}

	return &domain.EncryptedPosition{
		StrategyID:   id,
		Asset:        asset,
		Position:     handleFromBytes(posBytes),
		UpdatedBlock: uint64(block),
	}, nil
}
