package fhe

import "context"

// Policy describes who may access a ciphertext once it is produced.
// It is attached to every engine-produced value so the access-control
// decision is part of the value, not a separate imperative step.
type Policy struct {
	// Self grants the engine perpetual compute rights.
	Self bool
	// Principals may request decryption out-of-band.
	Principals []Principal
}

// CipherValue is a ciphertext handle together with its access policy.
type CipherValue struct {
	Handle Handle
	Policy Policy
}

// Sealed builds a CipherValue for h under policy p.
func Sealed(h Handle, p Policy) CipherValue {
	return CipherValue{Handle: h, Policy: p}
}

// Apply issues the grants described by the value's policy. Granting is
// idempotent on the coprocessor side, so replays are harmless.
func (v CipherValue) Apply(ctx context.Context, cop Coprocessor) error {
	if v.Handle.IsZero() {
		return nil
	}
	if v.Policy.Self {
		if err := cop.GrantSelf(ctx, v.Handle); err != nil {
			return err
		}
	}
	for _, p := range v.Policy.Principals {
		if err := cop.Grant(ctx, v.Handle, p); err != nil {
			return err
		}
	}
	return nil
}
