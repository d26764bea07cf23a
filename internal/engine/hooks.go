package engine

import (
	"context"
	"errors"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/idhash"
	"confidential-rebalancer/internal/storage"
)

// OnPreSwap is invoked by the swap pipeline before settlement. For every
// active, ready strategy enrolled for the pool it computes trade deltas and
// advances the execution clock according to the spread decision. A strategy
// whose lock is held is skipped; the others still process.
func (e *Engine) OnPreSwap(ctx context.Context, poolID, asset0, asset1 string) error {
	ids, err := e.coord.GetStrategiesForPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("lookup pool strategies: %w", err)
	}
	if e.metrics != nil {
		e.metrics.HookInvocations.WithLabelValues("pre_swap").Inc()
	}

	seen := make(map[domain.StrategyID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := e.preSwapStrategy(ctx, id, poolID); err != nil {
			if errors.Is(err, ErrExecutionInProgress) {
				e.onLockContended(ctx, id, poolID)
				continue
			}
			return fmt.Errorf("pre-swap strategy %s: %w", id.String(), err)
		}
	}
	return nil
}

func (e *Engine) preSwapStrategy(ctx context.Context, id domain.StrategyID, poolID string) error {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrStrategyNotFound
		}
		return err
	}
	if !strat.Active {
		return nil
	}

	if !e.guard.acquire(id) {
		return ErrExecutionInProgress
	}
	defer e.guard.release(id)

	block := e.clock.CurrentBlock()
	if !readyAt(strat, block) {
		return nil
	}

	if err := e.computeTradeDeltas(ctx, strat); err != nil {
		return err
	}

	// Confidential telemetry; the plaintext window already gated us.
	if _, err := e.checkEncryptedTiming(ctx, strat); err != nil {
		return err
	}

	// Spread decision: a partial round inside the opening fifth of the
	// cycle advances the clock one block at a time; otherwise the round
	// finalizes at the current block. readyAt demands a full frequency
	// interval while the spread window ends at a fifth of one, so on this
	// path the windows are disjoint and the round always finalizes;
	// partial rounds surface through ShouldSpreadExecution for callers
	// that stage their own executions.
	next := block
	if inSpreadWindow(strat, block) {
		next = strat.LastExecutionBlock + 1
	}
	if err := e.strategies.SetLastExecutionBlock(ctx, id, next); err != nil {
		return fmt.Errorf("advance execution block: %w", err)
	}

	e.recordEvent(ctx, &domain.ExecutionEvent{
		StrategyID: id.String(),
		Kind:       domain.EventKindPreSwap,
		PoolID:     poolID,
		Block:      block,
	})
	return nil
}

// OnPostSwap is invoked by the swap pipeline after settlement with the
// realized signed deltas for the two assets as ciphertext handles. It
// applies them to each enrolled strategy's encrypted positions, recomputes
// trade deltas, and forwards realized-amount telemetry to the compliance
// reporter when enabled.
func (e *Engine) OnPostSwap(ctx context.Context, poolID, asset0, asset1 string, realizedDelta0, realizedDelta1 fhe.Handle) error {
	ids, err := e.coord.GetStrategiesForPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("lookup pool strategies: %w", err)
	}
	if e.metrics != nil {
		e.metrics.HookInvocations.WithLabelValues("post_swap").Inc()
	}

	seen := make(map[domain.StrategyID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := e.postSwapStrategy(ctx, id, poolID, asset0, asset1, realizedDelta0, realizedDelta1); err != nil {
			if errors.Is(err, ErrExecutionInProgress) {
				e.onLockContended(ctx, id, poolID)
				continue
			}
			return fmt.Errorf("post-swap strategy %s: %w", id.String(), err)
		}
	}
	return nil
}

func (e *Engine) postSwapStrategy(ctx context.Context, id domain.StrategyID, poolID, asset0, asset1 string, d0, d1 fhe.Handle) error {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrStrategyNotFound
		}
		return err
	}
	if !strat.Active {
		return nil
	}

	// Membership check over the strategy's own set; the reverse index may
	// carry stale or duplicate enrollments.
	set, err := e.coord.GetSet(ctx, id)
	if err != nil {
		return fmt.Errorf("load coordination set: %w", err)
	}
	if set.Enabled && !set.ContainsPool(poolID) {
		return nil
	}

	if !e.guard.acquire(id) {
		return ErrExecutionInProgress
	}
	defer e.guard.release(id)

	block := e.clock.CurrentBlock()
	reporter := e.reporterFor(ctx, id)

	// Both legs settle together; their audit events flush as one batch.
	audit := make([]*domain.ExecutionEvent, 0, 2)
	for _, leg := range []struct {
		asset string
		delta fhe.Handle
	}{{asset0, d0}, {asset1, d1}} {
		pos, err := e.positions.Get(ctx, id, leg.asset)
		if err != nil {
			return fmt.Errorf("load position %s: %w", leg.asset, err)
		}
		updated, err := e.cop.Add(ctx, pos.Position, leg.delta)
		if err != nil {
			return fmt.Errorf("apply delta %s: %w", leg.asset, err)
		}
		if err := e.positions.Set(ctx, &domain.EncryptedPosition{
			StrategyID:   id,
			Asset:        leg.asset,
			Position:     updated,
			UpdatedBlock: block,
		}); err != nil {
			return fmt.Errorf("store position %s: %w", leg.asset, err)
		}
		if err := e.seal(ctx, updated, strat.Owner); err != nil {
			return err
		}

		// Slippage telemetry over the realized amount, forwarded to the
		// reporter when enabled.
		if !leg.delta.IsZero() {
			slip, err := e.checkSlippageProtection(ctx, strat, leg.delta)
			if err != nil {
				return err
			}
			if reporter != "" {
				if err := e.seal(ctx, slip, strat.Owner, reporter); err != nil {
					return err
				}
				if err := e.seal(ctx, leg.delta, strat.Owner, reporter); err != nil {
					return err
				}
			}
		}

		audit = append(audit, &domain.ExecutionEvent{
			StrategyID: id.String(),
			Kind:       domain.EventKindPostSwap,
			PoolID:     poolID,
			Asset:      leg.asset,
			Block:      block,
			HandleRef:  updated.Short(),
		})
	}
	e.recordEvents(ctx, audit)

	return e.computeTradeDeltas(ctx, strat)
}

func (e *Engine) onLockContended(ctx context.Context, id domain.StrategyID, poolID string) {
	e.log.Warn().Str("strategy", idhash.ShortID(id)).Str("pool", poolID).
		Msg("hook skipped, execution in progress")
	e.reject("lock")
	e.recordEvent(ctx, &domain.ExecutionEvent{
		StrategyID: id.String(),
		Kind:       domain.EventKindLockContended,
		PoolID:     poolID,
	})
}
