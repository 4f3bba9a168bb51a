package docwatch

import (
	"time"

	"github.com/jpalmerr/docwatch/internal/backoff"
)

// Backoff is the delay policy between failed attempts for one document.
//
// The delay after the n-th failed attempt (0-based) is
// min(Base * Multiplier^n, Cap).
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
}

// DefaultBackoff returns the default policy: 1.5s, growing by 1.25x, capped at 5s.
func DefaultBackoff() Backoff {
	p := backoff.Default()
	return Backoff{Base: p.Base, Multiplier: p.Multiplier, Cap: p.Cap}
}

// Delay returns the wait after the n-th failed attempt.
func (b Backoff) Delay(n int) time.Duration {
	return b.policy().Delay(n)
}

func (b Backoff) policy() backoff.Policy {
	return backoff.Policy{Base: b.Base, Multiplier: b.Multiplier, Cap: b.Cap}
}
