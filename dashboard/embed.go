// Package dashboard provides the embedded web UI assets for docwatch.
//
// This package uses Go's embed directive to include the dashboard HTML, CSS,
// and JavaScript at compile time, so the binary ships without external files.
//
// The embedded assets are served by the server package at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
