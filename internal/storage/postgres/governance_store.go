package postgres

import (
	"context"
	"fmt"
	"time"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/storage"
)

// GovernanceStore implements storage.GovernanceStore using PostgreSQL.
type GovernanceStore struct {
	pool *Pool
}

// NewGovernanceStore creates a new GovernanceStore.
func NewGovernanceStore(pool *Pool) *GovernanceStore {
	return &GovernanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GovernanceStore = (*GovernanceStore)(nil)

// RecordVote records an affirmative vote and returns the new count.
// Returns ErrDuplicateKey if the voter already voted.
func (s *GovernanceStore) RecordVote(ctx context.Context, id domain.StrategyID, voter fhe.Principal) (int, error) {
	if voter == "" {
		return 0, storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO governance_votes (strategy_id, voter, voted_at) VALUES ($1, $2, $3)`,
		id[:], string(voter), time.Now().UnixMilli())
	if err != nil {
		if isDuplicateKeyError(err) {
			count, countErr := s.voteCount(ctx, id)
			if countErr != nil {
				return 0, countErr
			}
			return count, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("record vote: %w", err)
	}

	return s.voteCount(ctx, id)
}

func (s *GovernanceStore) voteCount(ctx context.Context, id domain.StrategyID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM governance_votes WHERE strategy_id = $1`, id[:]).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

// Get retrieves the governance state, empty if the strategy has no votes.
func (s *GovernanceStore) Get(ctx context.Context, id domain.StrategyID) (*domain.GovernanceState, error) {
	state := &domain.GovernanceState{
		StrategyID: id,
		Voters:     make(map[fhe.Principal]bool),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT voter FROM governance_votes WHERE strategy_id = $1`, id[:])
	if err != nil {
		return nil, fmt.Errorf("get votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var voter string
		if err := rows.Scan(&voter); err != nil {
			return nil, fmt.Errorf("scan vote row: %w", err)
		}
		state.Voters[fhe.Principal(voter)] = true
		state.AffirmativeVotes++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote rows: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT executed FROM governance_triggers WHERE strategy_id = $1`, id[:]).
		Scan(&state.Executed)
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("get trigger state: %w", err)
	}
	return state, nil
}

// MarkExecuted flags the one-shot governance trigger as spent.
func (s *GovernanceStore) MarkExecuted(ctx context.Context, id domain.StrategyID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO governance_triggers (strategy_id, executed) VALUES ($1, TRUE)
		 ON CONFLICT (strategy_id) DO UPDATE SET executed = TRUE`, id[:])
	if err != nil {
		return fmt.Errorf("mark trigger executed: %w", err)
	}
	return nil
}
