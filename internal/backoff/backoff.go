// Package backoff computes capped exponential retry delays.
//
// A [Policy] is a plain value: it holds no state between calls, so the same
// policy can be shared by every poll loop without synchronisation.
package backoff

import (
	"errors"
	"math"
	"time"
)

const (
	defaultBase       = 1500 * time.Millisecond
	defaultMultiplier = 1.25
	defaultCap        = 5 * time.Second
)

// Policy describes a capped exponential backoff.
//
// The delay for attempt n (starting at 0) is min(Base * Multiplier^n, Cap).
type Policy struct {
	// Base is the delay returned for attempt 0.
	Base time.Duration

	// Multiplier is the growth factor between consecutive attempts.
	Multiplier float64

	// Cap is the upper bound for any delay.
	Cap time.Duration
}

// Default returns the policy used when none is configured:
// 1.5s base, 1.25 multiplier, 5s cap.
func Default() Policy {
	return Policy{
		Base:       defaultBase,
		Multiplier: defaultMultiplier,
		Cap:        defaultCap,
	}
}

// Validate reports whether the policy produces positive, non-decreasing delays.
func (p Policy) Validate() error {
	if p.Base <= 0 {
		return errors.New("backoff base must be positive")
	}
	if p.Multiplier < 1 || math.IsNaN(p.Multiplier) || math.IsInf(p.Multiplier, 0) {
		return errors.New("backoff multiplier must be a finite value >= 1")
	}
	if p.Cap < p.Base {
		return errors.New("backoff cap must not be smaller than base")
	}
	return nil
}

// Delay returns the wait before the attempt following attempt n.
// Negative n is treated as 0. Results that overflow are clamped to Cap.
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}

	scaled := float64(p.Base) * math.Pow(p.Multiplier, float64(n))
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || scaled >= float64(p.Cap) {
		return p.Cap
	}

	d := time.Duration(scaled)
	if d < p.Base {
		// float rounding must never undercut the first delay
		return p.Base
	}
	return d
}
