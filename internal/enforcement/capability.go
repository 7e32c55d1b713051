package enforcement

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrTokenSpent is returned when a token is presented after it has
	// already been consumed, or when it was never issued at all.
	ErrTokenSpent = errors.New("capability token already spent or never issued")

	// ErrTokenMismatch is returned when a token is presented with an
	// invocation other than the one it was issued for.
	ErrTokenMismatch = errors.New("capability token was not issued for this invocation")
)

// Token is proof that the enforcement layer evaluated an invocation and
// approved it at a specific tier. Only issueToken can create a live one;
// the zero value is inert and fails on use. A token is consumed by the
// execution gate exactly once: copies share the spend flag, so no copy can
// be presented a second time.
type Token struct {
	tier         Tier
	invocationID string
	spent        *atomic.Bool
}

func issueToken(tier Tier, invocationID string) Token {
	return Token{
		tier:         tier,
		invocationID: invocationID,
		spent:        new(atomic.Bool),
	}
}

// Tier reports the privilege level the token was issued at.
func (t Token) Tier() Tier {
	return t.tier
}

// Valid reports whether the token was issued by the engine and has not yet
// been consumed.
func (t Token) Valid() bool {
	return t.spent != nil && !t.spent.Load()
}

func (t Token) spend(invocationID string) error {
	if t.spent == nil {
		return ErrTokenSpent
	}
	if t.invocationID != invocationID {
		return ErrTokenMismatch
	}
	if !t.spent.CompareAndSwap(false, true) {
		return ErrTokenSpent
	}
	return nil
}
