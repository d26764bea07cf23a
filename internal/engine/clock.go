package engine

import "sync/atomic"

// BlockClock supplies the current block height of the host chain. The feed
// implements it from swap notifications; tests drive a ManualClock.
type BlockClock interface {
	CurrentBlock() uint64
}

// ManualClock is a BlockClock advanced by hand.
type ManualClock struct {
	block atomic.Uint64
}

// NewManualClock creates a clock positioned at the given block.
func NewManualClock(block uint64) *ManualClock {
	c := &ManualClock{}
	c.block.Store(block)
	return c
}

// CurrentBlock implements BlockClock.
func (c *ManualClock) CurrentBlock() uint64 {
	return c.block.Load()
}

// SetBlock positions the clock at the given block.
func (c *ManualClock) SetBlock(block uint64) {
	c.block.Store(block)
}

// Advance moves the clock forward by n blocks.
func (c *ManualClock) Advance(n uint64) {
	c.block.Add(n)
}
