package domain

import "confidential-rebalancer/internal/fhe"

// GovernanceState tracks voting for a governance strategy. Execution
// auto-triggers once AffirmativeVotes reaches the configured threshold;
// the trigger is one-shot, a strategy cannot be re-voted into execution.
type GovernanceState struct {
	StrategyID       StrategyID
	AffirmativeVotes int
	Executed         bool
	Voters           map[fhe.Principal]bool // principal -> has voted
}
