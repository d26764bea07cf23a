package memory

import (
	"context"
	"sync"

	"confidential-rebalancer/internal/domain"
)

// CoordinationStore is an in-memory implementation of storage.CoordinationStore.
type CoordinationStore struct {
	mu      sync.RWMutex
	sets    map[domain.StrategyID]*domain.CoordinationSet
	reverse map[string][]domain.StrategyID // pool -> enrolled strategies
}

// NewCoordinationStore creates a new in-memory coordination store.
func NewCoordinationStore() *CoordinationStore {
	return &CoordinationStore{
		sets:    make(map[domain.StrategyID]*domain.CoordinationSet),
		reverse: make(map[string][]domain.StrategyID),
	}
}

// SetPools replaces the strategy's coordination set and appends the strategy
// to each pool's reverse index. Re-registration may leave duplicates in the
// reverse index; consumers check membership rather than assume uniqueness.
func (s *CoordinationStore) SetPools(_ context.Context, id domain.StrategyID, pools []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := &domain.CoordinationSet{
		StrategyID: id,
		Pools:      append([]string(nil), pools...),
		Enabled:    true,
	}
	s.sets[id] = set

	for _, pool := range pools {
		s.reverse[pool] = append(s.reverse[pool], id)
	}
	return nil
}

// GetSet retrieves the strategy's coordination set, empty and disabled if
// the strategy was never enrolled.
func (s *CoordinationStore) GetSet(_ context.Context, id domain.StrategyID) (*domain.CoordinationSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, exists := s.sets[id]
	if !exists {
		return &domain.CoordinationSet{StrategyID: id}, nil
	}

	copy := domain.CoordinationSet{
		StrategyID: set.StrategyID,
		Pools:      append([]string(nil), set.Pools...),
		Enabled:    set.Enabled,
	}
	return &copy, nil
}

// GetStrategiesForPool retrieves strategy ids enrolled for a pool.
func (s *CoordinationStore) GetStrategiesForPool(_ context.Context, poolID string) ([]domain.StrategyID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.StrategyID(nil), s.reverse[poolID]...), nil
}
