package postgres

import (
	"context"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// CoordinationStore implements storage.CoordinationStore using PostgreSQL.
type CoordinationStore struct {
	pool *Pool
}

// NewCoordinationStore creates a new CoordinationStore.
func NewCoordinationStore(pool *Pool) *CoordinationStore {
	return &CoordinationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CoordinationStore = (*CoordinationStore)(nil)

// SetPools replaces the strategy's coordination set and appends the strategy
// to each pool's reverse index. The reverse index is append-only; duplicates
// after re-registration are tolerated.
func (s *CoordinationStore) SetPools(ctx context.Context, id domain.StrategyID, pools []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin coordination tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM coordination_sets WHERE strategy_id = $1`, id[:]); err != nil {
		return fmt.Errorf("clear coordination set: %w", err)
	}
	for _, pool := range pools {
		if _, err := tx.Exec(ctx,
			`INSERT INTO coordination_sets (strategy_id, pool_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, id[:], pool); err != nil {
			return fmt.Errorf("insert coordination pool: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO coordination_pool_index (pool_id, strategy_id) VALUES ($1, $2)`,
			pool, id[:]); err != nil {
			return fmt.Errorf("append pool index: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO coordination_state (strategy_id, enabled) VALUES ($1, TRUE)
		 ON CONFLICT (strategy_id) DO UPDATE SET enabled = TRUE`, id[:]); err != nil {
		return fmt.Errorf("mark coordination enabled: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit coordination tx: %w", err)
	}
	return nil
}

// GetSet retrieves the strategy's coordination set, empty and disabled if
// the strategy was never enrolled.
func (s *CoordinationStore) GetSet(ctx context.Context, id domain.StrategyID) (*domain.CoordinationSet, error) {
	set := &domain.CoordinationSet{StrategyID: id}

	err := s.pool.QueryRow(ctx,
		`SELECT enabled FROM coordination_state WHERE strategy_id = $1`, id[:]).
		Scan(&set.Enabled)
	if err != nil {
		if isNotFoundError(err) {
			return set, nil
		}
		return nil, fmt.Errorf("get coordination state: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT pool_id FROM coordination_sets WHERE strategy_id = $1 ORDER BY pool_id ASC`,
		id[:])
	if err != nil {
		return nil, fmt.Errorf("get coordination pools: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pool string
		if err := rows.Scan(&pool); err != nil {
			return nil, fmt.Errorf("scan coordination pool: %w", err)
		}
		set.Pools = append(set.Pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coordination pools: %w", err)
	}
	return set, nil
}

// GetStrategiesForPool retrieves strategy ids enrolled for a pool.
// May contain duplicates after re-registration.
func (s *CoordinationStore) GetStrategiesForPool(ctx context.Context, poolID string) ([]domain.StrategyID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT strategy_id FROM coordination_pool_index WHERE pool_id = $1 ORDER BY seq ASC`,
		poolID)
	if err != nil {
		return nil, fmt.Errorf("get strategies for pool: %w", err)
	}
	defer rows.Close()

	var ids []domain.StrategyID
	for rows.Next() {
		var idBytes []byte
		if err := rows.Scan(&idBytes); err != nil {
			return nil, fmt.Errorf("scan pool index row: %w", err)
		}
		ids = append(ids, strategyIDFromBytes(idBytes))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool index rows: %w", err)
	}
	return ids, nil
}
