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

// CreateGovernanceStrategy registers a strategy owned by the governance
// principal. Only governance may call it.
func (e *Engine) CreateGovernanceStrategy(ctx context.Context, caller fhe.Principal, id domain.StrategyID, frequency uint64, params domain.ExecutionParams) error {
	if e.governance == "" || caller != e.governance {
		return ErrNotGovernance
	}
	return e.createStrategy(ctx, caller, id, frequency, params, true)
}

// VoteOnStrategy casts one affirmative vote for a governance strategy.
// Voters are authorized executors or governance itself; each votes once.
// Reaching the vote threshold triggers the strategy's execution exactly
// once: deltas are recomputed and the execution block advances. A spent
// trigger cannot be re-voted into execution.
func (e *Engine) VoteOnStrategy(ctx context.Context, caller fhe.Principal, id domain.StrategyID) error {
	if !e.isExecutor(caller) && caller != e.governance {
		return ErrNotAuthorizedExecutor
	}

	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrStrategyNotFound
		}
		return fmt.Errorf("load strategy: %w", err)
	}
	if !strat.Governance {
		return ErrNotGovernanceStrategy
	}

	state, err := e.gov.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load governance state: %w", err)
	}
	if state.Executed {
		return ErrGovernanceTriggerSpent
	}

	count, err := e.gov.RecordVote(ctx, id, caller)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("record vote: %w", err)
	}

	e.log.Info().Str("strategy", idhash.ShortID(id)).Str("voter", string(caller)).
		Int("votes", count).Int("threshold", e.voteThreshold).Msg("governance vote cast")

	if count < e.voteThreshold {
		return nil
	}

	if err := e.computeTradeDeltas(ctx, strat); err != nil {
		return err
	}
	block := e.clock.CurrentBlock()
	if err := e.strategies.SetLastExecutionBlock(ctx, id, block); err != nil {
		return fmt.Errorf("update last execution block: %w", err)
	}
	if err := e.gov.MarkExecuted(ctx, id); err != nil {
		return fmt.Errorf("mark governance trigger spent: %w", err)
	}

	e.recordEvent(ctx, &domain.ExecutionEvent{
		StrategyID: id.String(),
		Kind:       domain.EventKindGovernance,
		Caller:     string(caller),
		Block:      block,
	})
	if e.metrics != nil {
		e.metrics.ExecutionsTotal.Inc()
	}
	return nil
}

// GetGovernanceStatus returns the strategy's vote count and trigger state.
func (e *Engine) GetGovernanceStatus(ctx context.Context, id domain.StrategyID) (*domain.GovernanceState, error) {
	return e.gov.Get(ctx, id)
}
