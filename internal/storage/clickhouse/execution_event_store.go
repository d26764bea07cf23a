package clickhouse

import (
	"context"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/storage"
)

// ExecutionEventStore implements storage.ExecutionEventStore using
// ClickHouse. The table is an append-only MergeTree audit sink; events are
// never updated or deleted.
type ExecutionEventStore struct {
	conn *Conn
}

// NewExecutionEventStore creates a new ExecutionEventStore.
func NewExecutionEventStore(conn *Conn) *ExecutionEventStore {
	return &ExecutionEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ExecutionEventStore = (*ExecutionEventStore)(nil)

// Insert appends an audit event.
func (s *ExecutionEventStore) Insert(ctx context.Context, e *domain.ExecutionEvent) error {
	if e == nil || e.StrategyID == "" || e.Kind == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO execution_events (
			strategy_id, kind, caller, pool_id, asset, block, handle_ref, timestamp_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		e.StrategyID, e.Kind, e.Caller, e.PoolID, e.Asset,
		e.Block, e.HandleRef, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert execution event: %w", err)
	}
	return nil
}

// InsertBulk appends multiple audit events in one batch.
func (s *ExecutionEventStore) InsertBulk(ctx context.Context, events []*domain.ExecutionEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO execution_events (
			strategy_id, kind, caller, pool_id, asset, block, handle_ref, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		if e == nil || e.StrategyID == "" || e.Kind == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			e.StrategyID, e.Kind, e.Caller, e.PoolID, e.Asset,
			e.Block, e.HandleRef, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByStrategy retrieves up to limit events for a strategy, newest first.
// limit <= 0 means no limit.
func (s *ExecutionEventStore) GetByStrategy(ctx context.Context, strategyID string, limit int) ([]*domain.ExecutionEvent, error) {
	query := `
		SELECT strategy_id, kind, caller, pool_id, asset, block, handle_ref, timestamp_ms
		FROM execution_events
		WHERE strategy_id = ?
		ORDER BY timestamp_ms DESC, block DESC
	`
	args := []any{strategyID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get events by strategy: %w", err)
	}
	defer rows.Close()

	var events []*domain.ExecutionEvent
	for rows.Next() {
		var e domain.ExecutionEvent
		err := rows.Scan(
			&e.StrategyID, &e.Kind, &e.Caller, &e.PoolID, &e.Asset,
			&e.Block, &e.HandleRef, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}
