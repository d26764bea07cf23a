package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/storage"
)

// StrategyStore implements storage.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *Pool
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStore = (*StrategyStore)(nil)

// Insert adds a new strategy. Returns ErrDuplicateKey if the id exists.
func (s *StrategyStore) Insert(ctx context.Context, strat *domain.Strategy) error {
	if strat == nil || strat.Owner == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO strategies (
			strategy_id, owner, active, governance, rebalance_frequency,
			last_execution_block, execution_window, spread_blocks,
			priority_fee, max_slippage, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		strat.ID[:],
		string(strat.Owner),
		strat.Active,
		strat.Governance,
		int64(strat.RebalanceFrequency),
		int64(strat.LastExecutionBlock),
		strat.Params.ExecutionWindow[:],
		strat.Params.SpreadBlocks[:],
		strat.Params.PriorityFee[:],
		strat.Params.MaxSlippage[:],
		strat.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert strategy: %w", err)
	}
	return nil
}

// GetByID retrieves a strategy by its ID. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(ctx context.Context, id domain.StrategyID) (*domain.Strategy, error) {
	query := `
		SELECT strategy_id, owner, active, governance, rebalance_frequency,
		       last_execution_block, execution_window, spread_blocks,
		       priority_fee, max_slippage, created_at
		FROM strategies
		WHERE strategy_id = $1
	`

	row := s.pool.QueryRow(ctx, query, id[:])
	strat, err := scanStrategy(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy by id: %w", err)
	}
	return strat, nil
}

// SetActive updates the active flag. Returns ErrNotFound if not exists.
func (s *StrategyStore) SetActive(ctx context.Context, id domain.StrategyID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategies SET active = $2 WHERE strategy_id = $1`, id[:], active)
	if err != nil {
		return fmt.Errorf("set strategy active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetLastExecutionBlock records the block of the latest execution.
func (s *StrategyStore) SetLastExecutionBlock(ctx context.Context, id domain.StrategyID, block uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategies SET last_execution_block = $2 WHERE strategy_id = $1`,
		id[:], int64(block))
	if err != nil {
		return fmt.Errorf("set last execution block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all strategies ordered by insertion.
func (s *StrategyStore) List(ctx context.Context) ([]*domain.Strategy, error) {
	query := `
		SELECT strategy_id, owner, active, governance, rebalance_frequency,
		       last_execution_block, execution_window, spread_blocks,
		       priority_fee, max_slippage, created_at
		FROM strategies
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var result []*domain.Strategy
	for rows.Next() {
		strat, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}
		result = append(result, strat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy rows: %w", err)
	}
	return result, nil
}

// scanStrategy scans a single row into a Strategy.
func scanStrategy(row pgx.Row) (*domain.Strategy, error) {
	var (
		strat                              domain.Strategy
		idBytes, window, spread, fee, slip []byte
		owner                              string
		frequency, lastBlock               int64
	)

	err := row.Scan(
		&idBytes,
		&owner,
		&strat.Active,
		&strat.Governance,
		&frequency,
		&lastBlock,
		&window,
		&spread,
		&fee,
		&slip,
		&strat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	strat.ID = strategyIDFromBytes(idBytes)
	strat.Owner = fhe.Principal(owner)
	strat.RebalanceFrequency = uint64(frequency)
	strat.LastExecutionBlock = uint64(lastBlock)
	strat.Params = domain.ExecutionParams{
		ExecutionWindow: handleFromBytes(window),
		SpreadBlocks:    handleFromBytes(spread),
		PriorityFee:     handleFromBytes(fee),
		MaxSlippage:     handleFromBytes(slip),
	}
	return &strat, nil
}
