package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Default request settings.
const (
	DefaultListPath = "/api/documents"
	DefaultTextPath = "/api/documents/{id}/summary"
	DefaultTimeout  = 10 * time.Second
)

// IDPlaceholder is substituted with the escaped document id in the text path.
const IDPlaceholder = "{id}"

// TextExtractor turns a text response body into derived text.
// A blank result means the text is not available yet.
type TextExtractor func(body []byte) string

// StatusError is returned when the documents service answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Config describes how to reach the documents service.
type Config struct {
	// BaseURL is the scheme and host, optionally with a path prefix. Required.
	BaseURL string

	// ListPath is appended to BaseURL to list documents. Defaults to [DefaultListPath].
	ListPath string

	// TextPath is appended to BaseURL to query one document's text. It must
	// contain [IDPlaceholder]. Defaults to [DefaultTextPath].
	TextPath string

	// Headers are sent with every request.
	Headers map[string]string

	// Timeout bounds each request. Defaults to [DefaultTimeout].
	Timeout time.Duration

	// RateLimit is the maximum number of requests per second across the
	// client. Zero disables limiting.
	RateLimit float64

	// Burst is the limiter bucket size. Defaults to 1 when RateLimit is set.
	Burst int

	// Extractor converts text bodies. Defaults to returning the trimmed body.
	Extractor TextExtractor

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client queries the documents service.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	listPath string
	textPath string
	headers  map[string]string
	timeout  time.Duration
	extract  TextExtractor
	limiter  *rate.Limiter
	logger   *slog.Logger

	httpClient *http.Client
	group      singleflight.Group
}

// New validates cfg and creates a [Client].
//
// Returns an error if BaseURL is not an absolute http(s) URL, if TextPath
// lacks the id placeholder, or if any numeric setting is negative.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("base URL must include a host")
	}

	listPath := cfg.ListPath
	if listPath == "" {
		listPath = DefaultListPath
	}
	textPath := cfg.TextPath
	if textPath == "" {
		textPath = DefaultTextPath
	}
	if !strings.Contains(textPath, IDPlaceholder) {
		return nil, fmt.Errorf("text path %q must contain %s", textPath, IDPlaceholder)
	}

	timeout := cfg.Timeout
	if timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if cfg.RateLimit < 0 {
		return nil, errors.New("rate limit must not be negative")
	}
	if cfg.Burst < 0 {
		return nil, errors.New("burst must not be negative")
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	extract := cfg.Extractor
	if extract == nil {
		extract = func(body []byte) string { return strings.TrimSpace(string(body)) }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &Client{
		baseURL:    base,
		listPath:   ensureLeadingSlash(listPath),
		textPath:   ensureLeadingSlash(textPath),
		headers:    headers,
		timeout:    timeout,
		extract:    extract,
		limiter:    limiter,
		logger:     logger,
		httpClient: newHTTPClient(),
	}, nil
}

// TextURL returns the URL queried by [Client.FetchText] for id.
func (c *Client) TextURL(id string) string {
	return c.baseURL + strings.ReplaceAll(c.textPath, IDPlaceholder, url.PathEscape(id))
}

// ListURL returns the URL queried by [Client.ListDocuments].
func (c *Client) ListURL() string {
	return c.baseURL + c.listPath
}

// FetchText performs one text query for document id.
//
// A nil error with blank text means the document exists but its text is not
// ready yet. Concurrent calls for the same id share a single request; each
// caller still returns early when its own ctx is done.
func (c *Client) FetchText(ctx context.Context, id string) (string, error) {
	ch := c.group.DoChan(id, func() (any, error) {
		// detached so one caller's cancellation does not fail the others;
		// the request timeout still bounds it
		resp, err := c.get(context.WithoutCancel(ctx), c.TextURL(id))
		if err != nil {
			return "", err
		}
		c.logger.Debug("text query completed",
			"id", id,
			"status", resp.statusCode,
			"latency_ms", resp.latency.Milliseconds(),
		)
		return c.extract(resp.body), nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// ListDocuments returns the documents currently known to the service.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	resp, err := c.get(ctx, c.ListURL())
	if err != nil {
		return nil, err
	}

	var docs []Document
	if err := json.Unmarshal(resp.body, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode document list: %w", err)
	}
	return docs, nil
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
