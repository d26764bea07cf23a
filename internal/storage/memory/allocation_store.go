package memory

import (
	"context"
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// AllocationStore is an in-memory implementation of storage.AllocationStore.
type AllocationStore struct {
	mu   sync.RWMutex
	// per strategy, ordered by first insertion; updates keep the slot
	data map[domain.StrategyID][]*domain.TargetAllocation
}

// NewAllocationStore creates a new in-memory allocation store.
func NewAllocationStore() *AllocationStore {
	return &AllocationStore{
		data: make(map[domain.StrategyID][]*domain.TargetAllocation),
	}
}

// Upsert inserts the allocation or updates the existing (strategy, asset)
// entry in place.
func (s *AllocationStore) Upsert(_ context.Context, a *domain.TargetAllocation) error {
	if a == nil || a.Asset == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.data[a.StrategyID]
	for i, existing := range entries {
		if existing.Asset == a.Asset {
			copy := *a
			entries[i] = &copy
			return nil
		}
	}

	copy := *a
	s.data[a.StrategyID] = append(entries, &copy)
	return nil
}

// GetByStrategy retrieves all allocation entries, ordered by first insertion.
func (s *AllocationStore) GetByStrategy(_ context.Context, id domain.StrategyID) ([]*domain.TargetAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.data[id]
	result := make([]*domain.TargetAllocation, 0, len(entries))
	for _, a := range entries {
		copy := *a
		result = append(result, &copy)
	}
	return result, nil
}
