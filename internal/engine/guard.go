package engine

import (
	"sync"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
)

// executionGuard holds the per-strategy execution locks and the per-caller
// execution history backing the same-block and cooldown rules.
//
// The lock is not blocking: a second entry while a strategy is executing
// must abort, so acquire is a try-lock.
type executionGuard struct {
	mu        sync.Mutex
	executing map[domain.StrategyID]bool
	lastBlock map[fhe.Principal]uint64 // caller -> block of last explicit execution
}

func newExecutionGuard() *executionGuard {
	return &executionGuard{
		executing: make(map[domain.StrategyID]bool),
		lastBlock: make(map[fhe.Principal]uint64),
	}
}

// acquire takes the strategy's execution lock. Returns false if it is held.
func (g *executionGuard) acquire(id domain.StrategyID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.executing[id] {
		return false
	}
	g.executing[id] = true
	return true
}

// release frees the strategy's execution lock. Safe to call on exit paths
// that never held it only if acquire succeeded; callers pair it with a
// successful acquire via defer.
func (g *executionGuard) release(id domain.StrategyID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.executing, id)
}

// callerLastBlock returns the block of the caller's previous explicit
// execution, 0 if the caller never executed.
func (g *executionGuard) callerLastBlock(caller fhe.Principal) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastBlock[caller]
}

// recordCallerExecution stores the block of the caller's explicit execution.
func (g *executionGuard) recordCallerExecution(caller fhe.Principal, block uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastBlock[caller] = block
}
