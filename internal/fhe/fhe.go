// Package fhe defines the boundary to the external confidential-arithmetic
// coprocessor. The engine only ever sees opaque ciphertext handles; plaintext
// never crosses this interface.
package fhe

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
)

// HandleSize is the byte length of a ciphertext handle.
const HandleSize = 32

// Handle is an opaque reference to an encrypted value held by the
// coprocessor. The zero Handle is the canonical zero-equivalent ciphertext:
// every arithmetic operation accepts it and treats it as an encryption of 0.
type Handle [HandleSize]byte

// IsZero reports whether h is the zero-equivalent handle.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// String returns the full hex encoding of the handle.
func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns a base58 prefix of the handle for logs and reports.
func (h Handle) Short() string {
	return base58.Encode(h[:8])
}

// Principal identifies a party that may hold decryption or compute rights
// over a ciphertext handle.
type Principal string

// Adapter errors.
var (
	// ErrUnknownHandle is returned when an operand handle was never produced
	// by the coprocessor.
	ErrUnknownHandle = errors.New("fhe: unknown ciphertext handle")

	// ErrAccessDenied is returned when a principal without a grant requests
	// decryption of a handle.
	ErrAccessDenied = errors.New("fhe: principal has no grant for handle")
)

// Coprocessor is the confidential-arithmetic service. All operations are
// synchronous; results are new handles, operands are never mutated.
// Comparison and logic operations return encrypted booleans: handles whose
// decrypted value is 0 or 1.
type Coprocessor interface {
	// Add returns a handle for a + b.
	Add(ctx context.Context, a, b Handle) (Handle, error)

	// Sub returns a handle for a - b.
	Sub(ctx context.Context, a, b Handle) (Handle, error)

	// Mul returns a handle for a * b.
	Mul(ctx context.Context, a, b Handle) (Handle, error)

	// Div returns a handle for a / b with b a plaintext constant handle.
	// Division is truncated toward zero.
	Div(ctx context.Context, a, b Handle) (Handle, error)

	// Gt returns an encrypted boolean for a > b.
	Gt(ctx context.Context, a, b Handle) (Handle, error)

	// Lt returns an encrypted boolean for a < b.
	Lt(ctx context.Context, a, b Handle) (Handle, error)

	// Ne returns an encrypted boolean for a != b.
	Ne(ctx context.Context, a, b Handle) (Handle, error)

	// And returns an encrypted boolean for a && b over encrypted booleans.
	And(ctx context.Context, a, b Handle) (Handle, error)

	// Or returns an encrypted boolean for a || b over encrypted booleans.
	Or(ctx context.Context, a, b Handle) (Handle, error)

	// Select returns a handle equal to a when cond decrypts to true, else b.
	// cond stays encrypted end to end; no branch is taken on plaintext.
	Select(ctx context.Context, cond, a, b Handle) (Handle, error)

	// EncryptConst produces a handle encrypting the given plaintext constant.
	EncryptConst(ctx context.Context, value int64) (Handle, error)

	// Grant records an out-of-band decryption right for principal over h.
	Grant(ctx context.Context, h Handle, principal Principal) error

	// GrantSelf records a perpetual compute right for the engine over h.
	GrantSelf(ctx context.Context, h Handle) error
}
