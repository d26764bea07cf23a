package memory

import (
	"context"
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/storage"
)

// GovernanceStore is an in-memory implementation of storage.GovernanceStore.
type GovernanceStore struct {
	mu   sync.RWMutex
	data map[domain.StrategyID]*domain.GovernanceState
}

// NewGovernanceStore creates a new in-memory governance store.
func NewGovernanceStore() *GovernanceStore {
	return &GovernanceStore{
		data: make(map[domain.StrategyID]*domain.GovernanceState),
	}
}

func (s *GovernanceStore) state(id domain.StrategyID) *domain.GovernanceState {
	st, exists := s.data[id]
	if !exists {
		st = &domain.GovernanceState{
			StrategyID: id,
			Voters:     make(map[fhe.Principal]bool),
		}
		s.data[id] = st
	}
	return st
}

// RecordVote records an affirmative vote and returns the new count.
// Returns ErrDuplicateKey if the voter already voted.
func (s *GovernanceStore) RecordVote(_ context.Context, id domain.StrategyID, voter fhe.Principal) (int, error) {
	if voter == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(id)
	if st.Voters[voter] {
		return st.AffirmativeVotes, storage.ErrDuplicateKey
	}
	st.Voters[voter] = true
	st.AffirmativeVotes++
	return st.AffirmativeVotes, nil
}

// Get retrieves the governance state, empty if the strategy has no votes.
func (s *GovernanceStore) Get(_ context.Context, id domain.StrategyID) (*domain.GovernanceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[id]
	if !exists {
		return &domain.GovernanceState{
			StrategyID: id,
			Voters:     make(map[fhe.Principal]bool),
		}, nil
	}

	copy := domain.GovernanceState{
		StrategyID:       st.StrategyID,
		AffirmativeVotes: st.AffirmativeVotes,
		Executed:         st.Executed,
		Voters:           make(map[fhe.Principal]bool, len(st.Voters)),
	}
	for v, voted := range st.Voters {
		copy.Voters[v] = voted
	}
	return &copy, nil
}

// MarkExecuted flags the one-shot governance trigger as spent.
func (s *GovernanceStore) MarkExecuted(_ context.Context, id domain.StrategyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state(id).Executed = true
	return nil
}
