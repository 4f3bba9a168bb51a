package docwatch

import (
	"time"

	"github.com/jpalmerr/docwatch/internal/store"
)

// Kind is the variant of a document's poll [State].
//
// Kind is a string type so it serializes to JSON and logs in readable form.
type Kind string

const (
	// KindIdle means the document has never been polled.
	KindIdle Kind = "idle"

	// KindLoading means an attempt is in flight or about to fire.
	KindLoading Kind = "loading"

	// KindResolved means the derived text is available. A resolved document
	// is never polled again by its background loop.
	KindResolved Kind = "resolved"

	// KindFailed means the last attempt errored or returned no text.
	// Background retries may still be running.
	KindFailed Kind = "failed"
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// FailureKind distinguishes why an attempt failed.
type FailureKind string

const (
	// FailureEmpty means the service answered but had no text yet.
	FailureEmpty FailureKind = "empty"

	// FailureFetch means the request itself failed.
	FailureFetch FailureKind = "fetch"
)

// State is a snapshot of one document's poll lifecycle.
//
// State is a value; later transitions do not modify snapshots already handed out.
type State struct {
	// ID is the document identifier.
	ID string

	// Kind is the variant tag.
	Kind Kind

	// Text is the derived text. Set only when Kind is [KindResolved].
	Text string

	// Failure classifies the last failure. Set only when Kind is [KindFailed].
	Failure FailureKind

	// Reason describes the last failure.
	Reason string

	// Attempt is the background attempt index that produced this state.
	Attempt int

	// UpdatedAt is when the state was recorded. Zero for idle documents.
	UpdatedAt time.Time
}

// Resolved reports whether the derived text is available.
func (s State) Resolved() bool {
	return s.Kind == KindResolved
}

// stateFromStore converts the internal store representation to the public type.
func stateFromStore(key store.Key, ps store.PollState) State {
	return State{
		ID:        string(key),
		Kind:      Kind(ps.Kind),
		Text:      ps.Text,
		Failure:   FailureKind(ps.Failure),
		Reason:    ps.Reason,
		Attempt:   ps.Attempt,
		UpdatedAt: ps.UpdatedAt,
	}
}
