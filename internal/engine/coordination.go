package engine

import (
	"context"
	"fmt"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/idhash"
)

// EnableCrossPoolCoordination replaces the strategy's coordination set with
// pools and enrolls the strategy in each pool's reverse index. Owner only.
// Re-registration is tolerated; duplicate reverse-index entries are
// harmless because consumers deduplicate.
func (e *Engine) EnableCrossPoolCoordination(ctx context.Context, caller fhe.Principal, id domain.StrategyID, pools []string) error {
	if _, err := e.getOwned(ctx, caller, id); err != nil {
		return err
	}

	if err := e.coord.SetPools(ctx, id, pools); err != nil {
		return fmt.Errorf("set coordination pools: %w", err)
	}

	e.log.Info().Str("strategy", idhash.ShortID(id)).Strs("pools", pools).
		Msg("cross-pool coordination enabled")
	return nil
}

// GetCoordinationSet returns the strategy's coordination enrollment.
func (e *Engine) GetCoordinationSet(ctx context.Context, id domain.StrategyID) (*domain.CoordinationSet, error) {
	return e.coord.GetSet(ctx, id)
}
