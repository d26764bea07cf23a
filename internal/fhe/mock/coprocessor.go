// Package mock provides an in-process Coprocessor for tests and local runs.
// Values live in a plaintext table keyed by handle; handles are
// content-addressed (sha256 over the operation and its operand handles), so
// recomputing the same expression yields the same handle.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	sdkmath "cosmossdk.io/math"

	"confidential-rebalancer/internal/fhe"
)

// Coprocessor implements fhe.Coprocessor over big-integer plaintext.
// It additionally exposes Decrypt, which enforces the recorded grants the
// way the real service does at its disclosure boundary.
type Coprocessor struct {
	mu     sync.RWMutex
	values map[fhe.Handle]sdkmath.Int
	grants map[fhe.Handle]map[fhe.Principal]struct{}
	self   map[fhe.Handle]struct{}
	ops    uint64
}

// New creates an empty mock coprocessor.
func New() *Coprocessor {
	return &Coprocessor{
		values: make(map[fhe.Handle]sdkmath.Int),
		grants: make(map[fhe.Handle]map[fhe.Principal]struct{}),
		self:   make(map[fhe.Handle]struct{}),
	}
}

func deriveHandle(op string, operands ...fhe.Handle) fhe.Handle {
	h := sha256.New()
	h.Write([]byte(op))
	for _, o := range operands {
		h.Write(o[:])
	}
	var out fhe.Handle
	copy(out[:], h.Sum(nil))
	return out
}

// lookup resolves a handle to its plaintext. The zero handle is the
// canonical encryption of 0 and always resolves.
func (c *Coprocessor) lookup(h fhe.Handle) (sdkmath.Int, error) {
	if h.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := c.values[h]
	if !ok {
		return sdkmath.Int{}, fhe.ErrUnknownHandle
	}
	return v, nil
}

func (c *Coprocessor) binOp(op string, a, b fhe.Handle, f func(x, y sdkmath.Int) sdkmath.Int) (fhe.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, err := c.lookup(a)
	if err != nil {
		return fhe.Handle{}, err
	}
	y, err := c.lookup(b)
	if err != nil {
		return fhe.Handle{}, err
	}

	out := deriveHandle(op, a, b)
	c.values[out] = f(x, y)
	c.ops++
	return out, nil
}

func boolInt(b bool) sdkmath.Int {
	if b {
		return sdkmath.OneInt()
	}
	return sdkmath.ZeroInt()
}

// Add implements fhe.Coprocessor.
func (c *Coprocessor) Add(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("add", a, b, func(x, y sdkmath.Int) sdkmath.Int { return x.Add(y) })
}

// Sub implements fhe.Coprocessor.
func (c *Coprocessor) Sub(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("sub", a, b, func(x, y sdkmath.Int) sdkmath.Int { return x.Sub(y) })
}

// Mul implements fhe.Coprocessor.
func (c *Coprocessor) Mul(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("mul", a, b, func(x, y sdkmath.Int) sdkmath.Int { return x.Mul(y) })
}

// Div implements fhe.Coprocessor. Division by an encrypted zero yields zero,
// matching the service's saturating behavior.
func (c *Coprocessor) Div(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("div", a, b, func(x, y sdkmath.Int) sdkmath.Int {
		if y.IsZero() {
			return sdkmath.ZeroInt()
		}
		return x.Quo(y)
	})
}

// Gt implements fhe.Coprocessor.
func (c *Coprocessor) Gt(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("gt", a, b, func(x, y sdkmath.Int) sdkmath.Int { return boolInt(x.GT(y)) })
}

// Lt implements fhe.Coprocessor.
func (c *Coprocessor) Lt(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("lt", a, b, func(x, y sdkmath.Int) sdkmath.Int { return boolInt(x.LT(y)) })
}

// Ne implements fhe.Coprocessor.
func (c *Coprocessor) Ne(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("ne", a, b, func(x, y sdkmath.Int) sdkmath.Int { return boolInt(!x.Equal(y)) })
}

// And implements fhe.Coprocessor.
func (c *Coprocessor) And(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("and", a, b, func(x, y sdkmath.Int) sdkmath.Int {
		return boolInt(!x.IsZero() && !y.IsZero())
	})
}

// Or implements fhe.Coprocessor.
func (c *Coprocessor) Or(_ context.Context, a, b fhe.Handle) (fhe.Handle, error) {
	return c.binOp("or", a, b, func(x, y sdkmath.Int) sdkmath.Int {
		return boolInt(!x.IsZero() || !y.IsZero())
	})
}

// Select implements fhe.Coprocessor.
func (c *Coprocessor) Select(_ context.Context, cond, a, b fhe.Handle) (fhe.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cv, err := c.lookup(cond)
	if err != nil {
		return fhe.Handle{}, err
	}
	x, err := c.lookup(a)
	if err != nil {
		return fhe.Handle{}, err
	}
	y, err := c.lookup(b)
	if err != nil {
		return fhe.Handle{}, err
	}

	out := deriveHandle("select", cond, a, b)
	if !cv.IsZero() {
		c.values[out] = x
	} else {
		c.values[out] = y
	}
	c.ops++
	return out, nil
}

// EncryptConst implements fhe.Coprocessor.
func (c *Coprocessor) EncryptConst(_ context.Context, value int64) (fhe.Handle, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(value))

	h := sha256.New()
	h.Write([]byte("const"))
	h.Write(buf[:])
	var out fhe.Handle
	copy(out[:], h.Sum(nil))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[out] = sdkmath.NewInt(value)
	c.ops++
	return out, nil
}

// Grant implements fhe.Coprocessor.
func (c *Coprocessor) Grant(_ context.Context, h fhe.Handle, principal fhe.Principal) error {
	if h.IsZero() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[h]; !ok {
		return fhe.ErrUnknownHandle
	}
	set, ok := c.grants[h]
	if !ok {
		set = make(map[fhe.Principal]struct{})
		c.grants[h] = set
	}
	set[principal] = struct{}{}
	return nil
}

// GrantSelf implements fhe.Coprocessor.
func (c *Coprocessor) GrantSelf(_ context.Context, h fhe.Handle) error {
	if h.IsZero() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[h]; !ok {
		return fhe.ErrUnknownHandle
	}
	c.self[h] = struct{}{}
	return nil
}

// Decrypt resolves h to plaintext on behalf of principal. This is the
// out-of-band disclosure boundary: it succeeds only for principals with a
// recorded grant. The zero handle decrypts to 0 for anyone.
func (c *Coprocessor) Decrypt(_ context.Context, h fhe.Handle, principal fhe.Principal) (sdkmath.Int, error) {
	if h.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[h]
	if !ok {
		return sdkmath.Int{}, fhe.ErrUnknownHandle
	}
	set, hasGrants := c.grants[h]
	if !hasGrants {
		return sdkmath.Int{}, fhe.ErrAccessDenied
	}
	if _, in := set[principal]; !in {
		return sdkmath.Int{}, fhe.ErrAccessDenied
	}
	return v, nil
}

// HasSelfGrant reports whether the engine holds a compute grant over h.
func (c *Coprocessor) HasSelfGrant(h fhe.Handle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.self[h]
	return ok
}

// OpCount returns the number of arithmetic operations serviced.
func (c *Coprocessor) OpCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ops
}
