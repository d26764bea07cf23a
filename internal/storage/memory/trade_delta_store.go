package memory

import (
	"context"
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// TradeDeltaStore is an in-memory implementation of storage.TradeDeltaStore.
type TradeDeltaStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeDelta
}

// NewTradeDeltaStore creates a new in-memory trade delta store.
func NewTradeDeltaStore() *TradeDeltaStore {
	return &TradeDeltaStore{
		data: make(map[string]*domain.TradeDelta),
	}
}

// Set stores the delta, replacing any previous one.
func (s *TradeDeltaStore) Set(_ context.Context, d *domain.TradeDelta) error {
	if d == nil || d.Asset == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *d
	s.data[positionKey(d.StrategyID, d.Asset)] = &copy
	return nil
}

// Get retrieves the delta for (strategy, asset). A never-computed asset
// yields the zero-equivalent handle.
func (s *TradeDeltaStore) Get(_ context.Context, id domain.StrategyID, asset string) (*domain.TradeDelta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.data[positionKey(id, asset)]
	if !exists {
		return &domain.TradeDelta{StrategyID: id, Asset: asset}, nil
	}

	copy := *d
	return &copy, nil
}
