package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a watcher polls many documents against one host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// response holds the raw outcome of one GET against the documents API.
type response struct {
	body       []byte
	statusCode int
	latency    time.Duration
}

// newHTTPClient returns a pooled client without a global timeout.
// Timeouts are applied per request via context in [Client.get].
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
			DisableKeepAlives:   false,
		},
	}
}

// get performs a rate-limited GET against url with the client's static
// headers and timeout. Bodies beyond 1MB are truncated.
//
// Any non-2xx status is returned as a [*StatusError] alongside the response.
func (c *Client) get(ctx context.Context, url string) (response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{latency: time.Since(start)}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	out := response{body: body, statusCode: resp.StatusCode, latency: time.Since(start)}
	if err != nil {
		return out, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return out, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil client. After Close, the client
// remains usable; new connections are established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
