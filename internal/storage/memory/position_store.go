package memory

import (
	"context"
	"fmt"
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// positionKey generates a unique key for a (strategy, asset) pair.
func positionKey(id domain.StrategyID, asset string) string {
	return fmt.Sprintf("%s|%s", id.String(), asset)
}

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EncryptedPosition
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.EncryptedPosition),
	}
}

// Set stores the position, replacing any previous one.
func (s *PositionStore) Set(_ context.Context, p *domain.EncryptedPosition) error {
	if p == nil || p.Asset == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.data[positionKey(p.StrategyID, p.Asset)] = &copy
	return nil
}

// Get retrieves the position for (strategy, asset). An asset that was never
// set yields the zero-equivalent handle.
func (s *PositionStore) Get(_ context.Context, id domain.StrategyID, asset string) (*domain.EncryptedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionKey(id, asset)]
	if !exists {
		return &domain.EncryptedPosition{StrategyID: id, Asset: asset}, nil
	}

	copy := *p
	return &copy, nil
}
