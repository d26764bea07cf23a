package postgres

import (
	"context"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// AllocationStore implements storage.AllocationStore using PostgreSQL.
type AllocationStore struct {
	pool *Pool
}

// NewAllocationStore creates a new AllocationStore.
func NewAllocationStore(pool *Pool) *AllocationStore {
	return &AllocationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AllocationStore = (*AllocationStore)(nil)

// Upsert inserts the allocation or updates the existing (strategy, asset)
// entry in place. The seq column keeps the original insertion slot.
func (s *AllocationStore) Upsert(ctx context.Context, a *domain.TargetAllocation) error {
	if a == nil || a.Asset == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO target_allocations (
			strategy_id, asset, target_percentage, min_threshold,
			max_threshold, active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (strategy_id, asset) DO UPDATE SET
			target_percentage = EXCLUDED.target_percentage,
			min_threshold = EXCLUDED.min_threshold,
			max_threshold = EXCLUDED.max_threshold,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		a.StrategyID[:],
		a.Asset,
		a.TargetPercentage[:],
		a.MinThreshold[:],
		a.MaxThreshold[:],
		a.Active,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert allocation: %w", err)
	}
	return nil
}

// GetByStrategy retrieves all allocation entries, ordered by first insertion.
func (s *AllocationStore) GetByStrategy(ctx context.Context, id domain.StrategyID) ([]*domain.TargetAllocation, error) {
	query := `
		SELECT strategy_id, asset, target_percentage, min_threshold,
		       max_threshold, active, updated_at
		FROM target_allocations
		WHERE strategy_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, id[:])
	if err != nil {
		return nil, fmt.Errorf("get allocations by strategy: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.TargetAllocation, 0)
	for rows.Next() {
		var (
			a                      domain.TargetAllocation
			idBytes, pct, min, max []byte
		)
		err := rows.Scan(&idBytes, &a.Asset, &pct, &min, &max, &a.Active, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan allocation row: %w", err)
		}
		a.StrategyID = strategyIDFromBytes(idBytes)
		a.TargetPercentage = handleFromBytes(pct)
		a.MinThreshold = handleFromBytes(min)
		a.MaxThreshold = handleFromBytes(max)
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocation rows: %w", err)
	}
	return result, nil
}
