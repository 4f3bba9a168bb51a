// Package api is the HTTP client for the remote documents service.
//
// This package is internal to docwatch. It lists documents and performs the
// single-attempt text query that the poll loops call. Requests for the same
// document are coalesced and all requests share an optional rate limit.
package api
