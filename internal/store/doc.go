// Package store holds the authoritative poll state of every watched document.
//
// This package is internal to docwatch. It maps a document [Key] to its
// current [PollState] and notifies observers synchronously whenever a state
// is replaced.
//
// The main components are:
//
//   - [Store]: Interface defining state access, conditional writes and observers
//   - [MemoryStore]: In-memory implementation of Store
//   - [PollState]: Tagged variant (idle, loading, resolved, failed) for one key
//
// Every write replaces the whole state for a key; readers never observe a
// partially updated value. Writes can be fenced with a per-key epoch so that
// work cancelled by the scheduler cannot land after the fact.
package store
