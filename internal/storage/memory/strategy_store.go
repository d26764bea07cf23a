package memory

import (
	"context"
	"sort"
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
type StrategyStore struct {
	mu   sync.RWMutex
	data map[domain.StrategyID]*domain.Strategy
	seq  map[domain.StrategyID]int // insertion order for List
	next int
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{
		data: make(map[domain.StrategyID]*domain.Strategy),
		seq:  make(map[domain.StrategyID]int),
	}
}

// Insert adds a new strategy. Returns ErrDuplicateKey if the id exists.
func (s *StrategyStore) Insert(_ context.Context, strat *domain.Strategy) error {
	if strat == nil || strat.Owner == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[strat.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *strat
	s.data[strat.ID] = &copy
	s.seq[strat.ID] = s.next
	s.next++
	return nil
}

// GetByID retrieves a strategy by its ID. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(_ context.Context, id domain.StrategyID) (*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strat, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *strat
	return &copy, nil
}

// SetActive updates the active flag. Returns ErrNotFound if not exists.
func (s *StrategyStore) SetActive(_ context.Context, id domain.StrategyID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	strat, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	strat.Active = active
	return nil
}

// SetLastExecutionBlock records the block of the latest execution.
func (s *StrategyStore) SetLastExecutionBlock(_ context.Context, id domain.StrategyID, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	strat, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	strat.LastExecutionBlock = block
	return nil
}

// List retrieves all strategies ordered by insertion.
func (s *StrategyStore) List(_ context.Context) ([]*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Strategy, 0, len(s.data))
	for _, strat := range s.data {
		copy := *strat
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}
