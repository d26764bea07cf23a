package domain

// CoordinationSet is the ordered list of pool identifiers a strategy is
// enrolled against for synchronized cross-pool execution.
type CoordinationSet struct {
	StrategyID StrategyID
	Pools      []string // ordered, as registered by the owner
	Enabled    bool
}

// ContainsPool reports whether poolID is a member of the set.
func (s *CoordinationSet) ContainsPool(poolID string) bool {
	for _, p := range s.Pools {
		if p == poolID {
			return true
		}
	}
	return false
}
