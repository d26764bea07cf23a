package memory

import (
	"context"
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// ExecutionEventStore is an in-memory implementation of
// storage.ExecutionEventStore, used in tests and when no ClickHouse sink is
// configured.
type ExecutionEventStore struct {
	mu   sync.RWMutex
	data []*domain.ExecutionEvent
}

// NewExecutionEventStore creates a new in-memory execution event store.
func NewExecutionEventStore() *ExecutionEventStore {
	return &ExecutionEventStore{}
}

// Insert appends an audit event.
func (s *ExecutionEventStore) Insert(_ context.Context, e *domain.ExecutionEvent) error {
	if e == nil || e.StrategyID == "" || e.Kind == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *e
	s.data = append(s.data, &copy)
	return nil
}

// InsertBulk appends multiple audit events in one batch. All events are
// validated before any is appended.
func (s *ExecutionEventStore) InsertBulk(_ context.Context, events []*domain.ExecutionEvent) error {
	for _, e := range events {
		if e == nil || e.StrategyID == "" || e.Kind == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		copy := *e
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetByStrategy retrieves up to limit events for a strategy, newest first.
func (s *ExecutionEventStore) GetByStrategy(_ context.Context, strategyID string, limit int) ([]*domain.ExecutionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionEvent
	for i := len(s.data) - 1; i >= 0; i-- {
		if s.data[i].StrategyID != strategyID {
			continue
		}
		copy := *s.data[i]
		result = append(result, &copy)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
