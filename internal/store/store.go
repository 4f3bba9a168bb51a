package store

import "time"

// Key identifies one document's poll lifecycle.
type Key string

// Kind is the tag of a [PollState].
type Kind string

const (
	// KindIdle means the key has never been polled.
	KindIdle Kind = "idle"

	// KindLoading means an attempt is in flight or about to fire.
	KindLoading Kind = "loading"

	// KindResolved means the derived text is available. Terminal.
	KindResolved Kind = "resolved"

	// KindFailed means the last attempt failed or returned no text.
	// Retries may still be running in the background.
	KindFailed Kind = "failed"
)

// FailureKind classifies a failed attempt for display purposes.
type FailureKind string

const (
	// FailureEmpty means the fetch succeeded but no text was available yet.
	FailureEmpty FailureKind = "empty"

	// FailureFetch means the fetch call itself failed (network, timeout, status code).
	FailureFetch FailureKind = "fetch"
)

// PollState is the current state of one key.
//
// PollState is a value type; the store replaces it wholesale on every write.
type PollState struct {
	// Kind is the variant tag.
	Kind Kind `json:"kind"`

	// Text is the derived text. Set only for KindResolved.
	Text string `json:"text,omitempty"`

	// Failure classifies the last failure. Set only for KindFailed.
	Failure FailureKind `json:"failure,omitempty"`

	// Reason is a human readable description of the last failure.
	Reason string `json:"reason,omitempty"`

	// Attempt is the background attempt index that produced this state.
	Attempt int `json:"attempt"`

	// UpdatedAt is when the state was written. Zero for idle.
	UpdatedAt time.Time `json:"updated_at"`
}

// Idle returns the state reported for unknown keys.
func Idle() PollState {
	return PollState{Kind: KindIdle}
}

// Loading returns a loading state for attempt n.
func Loading(n int) PollState {
	return PollState{Kind: KindLoading, Attempt: n, UpdatedAt: time.Now()}
}

// Resolved returns a terminal state carrying text.
func Resolved(text string, n int) PollState {
	return PollState{Kind: KindResolved, Text: text, Attempt: n, UpdatedAt: time.Now()}
}

// Failed returns a failed state for attempt n.
func Failed(kind FailureKind, reason string, n int) PollState {
	return PollState{Kind: KindFailed, Failure: kind, Reason: reason, Attempt: n, UpdatedAt: time.Now()}
}

// IsResolved reports whether s is the terminal resolved state.
func (s PollState) IsResolved() bool {
	return s.Kind == KindResolved
}

// Entry pairs a key with its state in snapshots.
type Entry struct {
	Key Key `json:"key"`
	PollState
}

// Listener observes state changes. It is called synchronously after each
// successful write, outside of any store lock.
type Listener func(key Key, state PollState)

// Store defines access to per-key poll state.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Get returns the state for key, or Idle() if the key is unknown.
	Get(key Key) PollState

	// Set replaces the state for key and notifies all listeners.
	Set(key Key, state PollState)

	// Subscribe registers a listener. The returned function removes it; it is
	// idempotent and safe to call from inside a listener.
	Subscribe(fn Listener) (unsubscribe func())

	// Epoch returns the current write generation for key.
	Epoch(key Key) uint64

	// Invalidate advances the write generation for key, rejecting every
	// pending Transition that carries an older epoch.
	Invalidate(key Key)

	// Transition replaces the state for key with next if epoch is current and
	// accept (when non-nil) approves the current state. Listeners are notified
	// only when the write is applied. Returns whether it was applied.
	Transition(key Key, epoch uint64, next PollState, accept func(current PollState) bool) bool

	// Release invalidates key, discards its state and notifies listeners with Idle().
	Release(key Key)

	// GetAll returns a snapshot of all stored states, sorted by key.
	GetAll() []Entry
}
