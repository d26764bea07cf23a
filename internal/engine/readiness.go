package engine

import (
	"context"
	"errors"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/storage"
)

// staleWindowFactor bounds how far past due a strategy may still execute.
const staleWindowFactor = 10

// spreadWindowDivisor defines the opening fraction of a cycle during which
// execution is spread over several blocks rather than finalized at once.
const spreadWindowDivisor = 5

// readyAt is the plaintext readiness heuristic: at least one full frequency
// interval elapsed, but not more than staleWindowFactor intervals.
func readyAt(strat *domain.Strategy, block uint64) bool {
	elapsed := block - strat.LastExecutionBlock
	if elapsed < strat.RebalanceFrequency {
		return false
	}
	if elapsed > staleWindowFactor*strat.RebalanceFrequency {
		return false
	}
	return true
}

// inSpreadWindow reports whether the strategy is inside the opening fifth of
// its cycle, where executions count as partial rounds.
func inSpreadWindow(strat *domain.Strategy, block uint64) bool {
	return block-strat.LastExecutionBlock < strat.RebalanceFrequency/spreadWindowDivisor
}

// IsExecutionReady reports whether the strategy may execute at the current
// block. Purely plaintext: the coarse eligibility window is public.
func (e *Engine) IsExecutionReady(ctx context.Context, id domain.StrategyID) (bool, error) {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, ErrStrategyNotFound
		}
		return false, err
	}
	return readyAt(strat, e.clock.CurrentBlock()), nil
}

// ShouldSpreadExecution reports whether an execution now would be a partial
// round inside the spread window.
func (e *Engine) ShouldSpreadExecution(ctx context.Context, id domain.StrategyID) (bool, error) {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, ErrStrategyNotFound
		}
		return false, err
	}
	return inSpreadWindow(strat, e.clock.CurrentBlock()), nil
}

// blockOffset derives a small pseudo-random offset from the block height so
// the precise execution instant inside the coarse window is unpredictable.
// Knuth multiplicative hash, folded to [0, 16).
func blockOffset(block uint64) int64 {
	return int64(block * 2654435761 % 16)
}

// checkEncryptedTiming combines the elapsed-block count with the strategy's
// encrypted execution window and a block-derived offset, entirely in
// encrypted arithmetic. The result is confidential telemetry: it is granted
// to the owner but never decrypted by the engine to gate execution.
func (e *Engine) checkEncryptedTiming(ctx context.Context, strat *domain.Strategy) (fhe.Handle, error) {
	block := e.clock.CurrentBlock()

	elapsed, err := e.cop.EncryptConst(ctx, int64(block-strat.LastExecutionBlock))
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("encrypt elapsed: %w", err)
	}
	offset, err := e.cop.EncryptConst(ctx, blockOffset(block))
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("encrypt offset: %w", err)
	}

	adjusted, err := e.cop.Add(ctx, strat.Params.ExecutionWindow, offset)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("adjust window: %w", err)
	}
	within, err := e.cop.Lt(ctx, elapsed, adjusted)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("window comparison: %w", err)
	}

	if err := e.seal(ctx, within, strat.Owner); err != nil {
		return fhe.Handle{}, err
	}
	return within, nil
}

// checkSlippageProtection compares a realized trade amount against the
// strategy's encrypted slippage tolerance. Returns an encrypted boolean.
func (e *Engine) checkSlippageProtection(ctx context.Context, strat *domain.Strategy, realized fhe.Handle) (fhe.Handle, error) {
	within, err := e.cop.Lt(ctx, realized, strat.Params.MaxSlippage)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("slippage comparison: %w", err)
	}
	if err := e.seal(ctx, within, strat.Owner); err != nil {
		return fhe.Handle{}, err
	}
	return within, nil
}

// CheckCrossPoolCoordination validates that poolID may trigger the strategy.
// Returns an encrypted false immediately when coordination is enabled and
// the pool is not enrolled; otherwise the encrypted timing signal.
func (e *Engine) CheckCrossPoolCoordination(ctx context.Context, id domain.StrategyID, poolID string) (fhe.Handle, error) {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fhe.Handle{}, ErrStrategyNotFound
		}
		return fhe.Handle{}, err
	}

	set, err := e.coord.GetSet(ctx, id)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("load coordination set: %w", err)
	}
	if set.Enabled && !set.ContainsPool(poolID) {
		return e.cop.EncryptConst(ctx, 0)
	}
	return e.checkEncryptedTiming(ctx, strat)
}
