// Package docwatch polls a documents service until each document's derived
// text (OCR output or its summary) becomes available, and exposes the
// per-document state to observers and a live dashboard.
//
// docwatch is designed as an SDK-first library. Every document id gets at
// most one background loop. A loop queries the service, records the
// outcome, and retries with capped exponential backoff until text appears.
// Resolved text is permanent: no background attempt can overwrite it.
//
// # Quick Start
//
//	src, _ := docwatch.NewSource("http://dms.internal:8080")
//	w, _ := docwatch.New(
//	    docwatch.WithSource(src),
//	    docwatch.WithDocuments("42"),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// # Driving Loops Directly
//
// Without [Watcher.Start], a Watcher is a plain library object:
//
//	w.Watch("42")                                   // start the background loop
//	state, ran := w.Refresh(ctx, "42", false)       // one immediate attempt
//	w.Stop("42")                                    // cancel pending retries
//	w.Release("42")                                 // cancel and forget
//
// A non-forced [Watcher.Refresh] coalesces with in-flight work: it does not
// query the service while the document is loading or already resolved.
//
// # States
//
// Each document is [KindIdle], [KindLoading], [KindResolved] or [KindFailed].
// Failures carry a [FailureKind]: [FailureEmpty] when the service answered
// without text, [FailureFetch] when the request itself failed. Both are
// retried the same way.
//
// # Text Extractors
//
// Extractors turn a text response body into derived text:
//
//   - [PlainText]: The trimmed body
//   - [JSONFieldText]: A JSON field using dot notation
//   - [RegexText]: The first capture group of a pattern
//   - [FirstMatch]: Tries extractors in order, returning the first non-blank text
//   - [DefaultExtractor]: ocrSummaryText, then ocrText, then text, then the raw body
//
// # Architecture
//
// docwatch consists of several internal packages (under internal/):
//
//   - internal/backoff: Capped exponential delay policy
//   - internal/store: Per-document state with synchronous observers and write fencing
//   - internal/poller: Per-document retry loops and one-shot attempts
//   - internal/api: HTTP client for the documents service
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package docwatch
