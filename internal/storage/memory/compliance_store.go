package memory

import (
	"context"
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/storage"
)

// ComplianceStore is an in-memory implementation of storage.ComplianceStore.
type ComplianceStore struct {
	mu   sync.RWMutex
	data map[domain.StrategyID]fhe.Principal
}

// NewComplianceStore creates a new in-memory compliance store.
func NewComplianceStore() *ComplianceStore {
	return &ComplianceStore{
		data: make(map[domain.StrategyID]fhe.Principal),
	}
}

// SetReporter enables compliance reporting for a strategy.
func (s *ComplianceStore) SetReporter(_ context.Context, id domain.StrategyID, reporter fhe.Principal) error {
	if reporter == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = reporter
	return nil
}

// GetReporter retrieves the reporter. Returns ErrNotFound if reporting was
// never enabled.
func (s *ComplianceStore) GetReporter(_ context.Context, id domain.StrategyID) (fhe.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reporter, exists := s.data[id]
	if !exists {
		return "", storage.ErrNotFound
	}
	return reporter, nil
}
