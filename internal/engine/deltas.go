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

// bpsDenominator scales basis-point percentages back to position units.
const bpsDenominator = 10000

// computeTradeDeltas recomputes every active asset's conditional trade delta
// for the strategy, entirely in encrypted arithmetic:
//
//	total    = sum of current positions over active allocations
//	target   = total * targetPercentage / 10000   (bps convention)
//	dev      = target - current                   (signed, no |x|)
//	needs    = dev > minThreshold && dev < maxThreshold
//	delta    = select(needs, target - current, 0)
//
// The deviation is compared signed on purpose: thresholds are interpreted
// with sign, so under-allocation triggers and over-allocation does not.
// With no active allocations the total is the encrypted zero and every
// stored delta is a zero-equivalent, a no-op.
func (e *Engine) computeTradeDeltas(ctx context.Context, strat *domain.Strategy) error {
	allocs, err := e.allocations.GetByStrategy(ctx, strat.ID)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}

	active := allocs[:0]
	for _, a := range allocs {
		if a.Active {
			active = append(active, a)
		}
	}

	positions := make(map[string]fhe.Handle, len(active))
	total := fhe.Handle{} // encrypted zero
	for _, a := range active {
		pos, err := e.positions.Get(ctx, strat.ID, a.Asset)
		if err != nil {
			return fmt.Errorf("load position %s: %w", a.Asset, err)
		}
		positions[a.Asset] = pos.Position

		total, err = e.cop.Add(ctx, total, pos.Position)
		if err != nil {
			return fmt.Errorf("sum positions: %w", err)
		}
	}

	denom, err := e.cop.EncryptConst(ctx, bpsDenominator)
	if err != nil {
		return fmt.Errorf("encrypt bps denominator: %w", err)
	}

	reporter := e.reporterFor(ctx, strat.ID)
	block := e.clock.CurrentBlock()

	for _, a := range active {
		current := positions[a.Asset]

		scaled, err := e.cop.Mul(ctx, total, a.TargetPercentage)
		if err != nil {
			return fmt.Errorf("scale target %s: %w", a.Asset, err)
		}
		target, err := e.cop.Div(ctx, scaled, denom)
		if err != nil {
			return fmt.Errorf("normalize target %s: %w", a.Asset, err)
		}

		deviation, err := e.cop.Sub(ctx, target, current)
		if err != nil {
			return fmt.Errorf("deviation %s: %w", a.Asset, err)
		}

		exceedsMin, err := e.cop.Gt(ctx, deviation, a.MinThreshold)
		if err != nil {
			return fmt.Errorf("min threshold %s: %w", a.Asset, err)
		}
		withinMax, err := e.cop.Lt(ctx, deviation, a.MaxThreshold)
		if err != nil {
			return fmt.Errorf("max threshold %s: %w", a.Asset, err)
		}
		needsRebalancing, err := e.cop.And(ctx, exceedsMin, withinMax)
		if err != nil {
			return fmt.Errorf("combine thresholds %s: %w", a.Asset, err)
		}

		conditional, err := e.cop.Select(ctx, needsRebalancing, deviation, fhe.Handle{})
		if err != nil {
			return fmt.Errorf("select delta %s: %w", a.Asset, err)
		}

		delta := &domain.TradeDelta{
			StrategyID:    strat.ID,
			Asset:         a.Asset,
			Delta:         conditional,
			ComputedBlock: block,
		}
		if err := e.deltas.Set(ctx, delta); err != nil {
			return fmt.Errorf("store delta %s: %w", a.Asset, err)
		}

		extra := []fhe.Principal(nil)
		if reporter != "" {
			extra = append(extra, reporter)
		}
		if err := e.seal(ctx, conditional, strat.Owner, extra...); err != nil {
			return err
		}
	}

	if e.metrics != nil {
		e.metrics.DeltaCalculations.Inc()
	}
	return nil
}

// reporterFor looks up the strategy's compliance reporter, empty when
// reporting is not enabled.
func (e *Engine) reporterFor(ctx context.Context, id domain.StrategyID) fhe.Principal {
	reporter, err := e.compliance.GetReporter(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.log.Warn().Err(err).Str("strategy", idhash.ShortID(id)).Msg("reporter lookup failed")
		}
		return ""
	}
	return reporter
}
