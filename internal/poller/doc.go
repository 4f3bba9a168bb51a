// Package poller drives per-document retry loops until derived text appears.
//
// This package is internal to docwatch. It owns one independent background
// loop per document key, applies a capped exponential backoff between
// attempts, and writes every outcome into a [store.Store].
//
// The main components are:
//
//   - [Scheduler]: Starts, deduplicates and cancels per-key loops and runs
//     manual one-shot attempts
//   - [Fetcher]: The single-attempt status query the loops call
//
// Cancellation is cooperative: stopping a key wakes its pending timer and
// fences off any write from an attempt that is still in flight.
//
// Users of the docwatch library should not need to interact with this
// package directly. Configuration is done through the main docwatch package.
package poller
