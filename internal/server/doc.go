// Package server provides the HTTP server for the docwatch dashboard and API.
//
// This package is internal to docwatch and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: JSON state snapshots plus watch, release and refresh actions
//   - Server-Sent Events: Real-time state transitions at "/api/sse"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the docwatch library should not need to interact with this
// package directly. The server is started by [docwatch.Watcher.Start].
package server
