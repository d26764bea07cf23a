package postgres

import (
	"context"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/storage"
)

// ComplianceStore implements storage.ComplianceStore using PostgreSQL.
type ComplianceStore struct {
	pool *Pool
}

// NewComplianceStore creates a new ComplianceStore.
func NewComplianceStore(pool *Pool) *ComplianceStore {
	return &ComplianceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ComplianceStore = (*ComplianceStore)(nil)

// SetReporter enables compliance reporting for a strategy.
func (s *ComplianceStore) SetReporter(ctx context.Context, id domain.StrategyID, reporter fhe.Principal) error {
	if reporter == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO compliance_reporters (strategy_id, reporter) VALUES ($1, $2)
		 ON CONFLICT (strategy_id) DO UPDATE SET reporter = EXCLUDED.reporter`,
		id[:], string(reporter))
	if err != nil {
		return fmt.Errorf("set reporter: %w", err)
	}
	return nil
}

// GetReporter retrieves the reporter. Returns ErrNotFound if reporting was
// never enabled.
func (s *ComplianceStore) GetReporter(ctx context.Context, id domain.StrategyID) (fhe.Principal, error) {
	var reporter string
	err := s.pool.QueryRow(ctx,
		`SELECT reporter FROM compliance_reporters WHERE strategy_id = $1`, id[:]).
		Scan(&reporter)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get reporter: %w", err)
	}
	return fhe.Principal(reporter), nil
}
