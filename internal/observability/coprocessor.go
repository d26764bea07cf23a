package observability

import (
	"context"
	"time"

	"confidential-rebalancer/internal/fhe"
)

// InstrumentedCoprocessor wraps an fhe.Coprocessor with per-operation
// counters and latency histograms.
type InstrumentedCoprocessor struct {
	inner   fhe.Coprocessor
	metrics *Metrics
}

// InstrumentCoprocessor decorates cop with the given metrics.
func InstrumentCoprocessor(cop fhe.Coprocessor, m *Metrics) *InstrumentedCoprocessor {
	return &InstrumentedCoprocessor{inner: cop, metrics: m}
}

func (c *InstrumentedCoprocessor) observe(op string, start time.Time) {
	c.metrics.CoprocessorOps.WithLabelValues(op).Inc()
	c.metrics.CoprocessorLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Add implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Add(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("add", time.Now())
	return c.inner.Add(ctx, a, b)
}

// Sub implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Sub(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("sub", time.Now())
	return c.inner.Sub(ctx, a, b)
}

// Mul implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Mul(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("mul", time.Now())
	return c.inner.Mul(ctx, a, b)
}

// Div implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Div(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("div", time.Now())
	return c.inner.Div(ctx, a, b)
}

// Gt implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Gt(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("gt", time.Now())
	return c.inner.Gt(ctx, a, b)
}

// Lt implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Lt(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("lt", time.Now())
	return c.inner.Lt(ctx, a, b)
}

// Ne implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Ne(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("ne", time.Now())
	return c.inner.Ne(ctx, a, b)
}

// And implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) And(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("and", time.Now())
	return c.inner.And(ctx, a, b)
}

// Or implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Or(ctx context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("or", time.Now())
	return c.inner.Or(ctx, a, b)
}

// Select implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Select(ctx context.Context, cond, a, b fhe.Handle) (fhe.Handle, error) {
	defer c.observe("select", time.Now())
	return c.inner.Select(ctx, cond, a, b)
}

// EncryptConst implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) EncryptConst(ctx context.Context, value int64) (fhe.Handle, error) {
	defer c.observe("encrypt_const", time.Now())
	return c.inner.EncryptConst(ctx, value)
}

// Grant implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) Grant(ctx context.Context, h fhe.Handle, principal fhe.Principal) error {
	defer c.observe("grant", time.Now())
	return c.inner.Grant(ctx, h, principal)
}

// GrantSelf implements fhe.Coprocessor.
func (c *InstrumentedCoprocessor) GrantSelf(ctx context.Context, h fhe.Handle) error {
	defer c.observe("grant_self", time.Now())
	return c.inner.GrantSelf(ctx, h)
}
