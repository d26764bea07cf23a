package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/idhash"
	"confidential-rebalancer/internal/storage"
)

// complianceReportEventLimit bounds how much audit history one report pulls.
const complianceReportEventLimit = 100

// ComplianceReport is the disclosure package handed to an authorized
// reporter. It carries plaintext metadata and ciphertext handle references;
// the reporter decrypts referenced handles out-of-band using its grants.
type ComplianceReport struct {
	StrategyID  string
	GeneratedAt int64
	Block       uint64
	Deltas      []ComplianceDelta
	Events      []*domain.ExecutionEvent
}

// ComplianceDelta references one asset's current trade delta ciphertext.
type ComplianceDelta struct {
	Asset     string
	DeltaRef  string // short handle reference
	DeltaFull string // full handle, for the out-of-band decryption request
}

// EnableComplianceReporting authorizes reporter to receive reports and
// decryption grants for the strategy's telemetry. Owner only.
func (e *Engine) EnableComplianceReporting(ctx context.Context, caller fhe.Principal, id domain.StrategyID, reporter fhe.Principal) error {
	if _, err := e.getOwned(ctx, caller, id); err != nil {
		return err
	}
	if err := e.compliance.SetReporter(ctx, id, reporter); err != nil {
		return fmt.Errorf("set reporter: %w", err)
	}

	e.log.Info().Str("strategy", idhash.ShortID(id)).Str("reporter", string(reporter)).
		Msg("compliance reporting enabled")
	return nil
}

// GenerateComplianceReport builds a report for the strategy. Allowed for
// the registered reporter and the owner; anyone else is rejected. Current
// delta handles are re-granted to the reporter so the referenced
// ciphertexts are decryptable out-of-band.
func (e *Engine) GenerateComplianceReport(ctx context.Context, caller fhe.Principal, id domain.StrategyID) (*ComplianceReport, error) {
	strat, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, fmt.Errorf("load strategy: %w", err)
	}

	reporter, err := e.compliance.GetReporter(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthorizedReporter
		}
		return nil, fmt.Errorf("load reporter: %w", err)
	}
	if caller != reporter && caller != strat.Owner {
		return nil, ErrUnauthorizedReporter
	}

	allocs, err := e.allocations.GetByStrategy(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load allocations: %w", err)
	}

	report := &ComplianceReport{
		StrategyID:  id.String(),
		GeneratedAt: time.Now().UnixMilli(),
		Block:       e.clock.CurrentBlock(),
	}

	for _, a := range allocs {
		d, err := e.deltas.Get(ctx, id, a.Asset)
		if err != nil {
			return nil, fmt.Errorf("load delta %s: %w", a.Asset, err)
		}
		if !d.Delta.IsZero() {
			if err := e.seal(ctx, d.Delta, strat.Owner, reporter); err != nil {
				return nil, err
			}
		}
		report.Deltas = append(report.Deltas, ComplianceDelta{
			Asset:     a.Asset,
			DeltaRef:  d.Delta.Short(),
			DeltaFull: d.Delta.String(),
		})
	}

	report.Events, err = e.events.GetByStrategy(ctx, id.String(), complianceReportEventLimit)
	if err != nil {
		return nil, fmt.Errorf("load audit events: %w", err)
	}
	return report, nil
}

// GetComplianceReporter returns the registered reporter, empty when
// reporting is disabled.
func (e *Engine) GetComplianceReporter(ctx context.Context, id domain.StrategyID) (fhe.Principal, error) {
	reporter, err := e.compliance.GetReporter(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return reporter, nil
}
