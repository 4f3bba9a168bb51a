package docwatch

import (
	"errors"
	"net/url"
	"time"

	"github.com/jpalmerr/docwatch/internal/api"
)

const defaultSourceTimeout = 10 * time.Second

// Source describes the remote documents service a [Watcher] polls.
//
// Source is immutable after creation via [NewSource]. Accessors return
// copies of mutable data.
type Source struct {
	baseURL   string
	listPath  string
	textPath  string
	headers   map[string]string
	timeout   time.Duration
	rateLimit float64
	burst     int
	extractor TextExtractor
}

// BaseURL returns the service's base URL.
func (s Source) BaseURL() string {
	return s.baseURL
}

// ListPath returns the path used to list documents.
func (s Source) ListPath() string {
	return s.listPath
}

// TextPath returns the per-document text path, containing "{id}".
func (s Source) TextPath() string {
	return s.textPath
}

// Headers returns a copy of the headers sent with every request.
// Returns nil if none are set.
func (s Source) Headers() map[string]string {
	return copyMap(s.headers)
}

// Timeout returns the per-request timeout.
func (s Source) Timeout() time.Duration {
	return s.timeout
}

// RateLimit returns the request rate limit in requests per second and its burst.
// A zero rate means unlimited.
func (s Source) RateLimit() (perSecond float64, burst int) {
	return s.rateLimit, s.burst
}

// Extractor returns the source's [TextExtractor]. When nil, [DefaultExtractor] is used.
func (s Source) Extractor() TextExtractor {
	return s.extractor
}

// NewSource creates a [Source] for the service at baseURL.
//
// The baseURL must be an absolute URL with an http:// or https:// scheme.
// Defaults: list path "/api/documents", text path
// "/api/documents/{id}/summary", 10 second timeout, no rate limit.
//
// Example:
//
//	src, err := docwatch.NewSource("http://dms.internal:8080",
//	    docwatch.WithHeaders("Authorization", "Bearer "+token),
//	    docwatch.WithRateLimit(5, 5),
//	)
func NewSource(baseURL string, opts ...SourceOption) (Source, error) {
	if baseURL == "" {
		return Source{}, errors.New("source base URL cannot be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return Source{}, errors.New("invalid URL: " + err.Error())
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Source{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &sourceConfig{
		listPath: api.DefaultListPath,
		textPath: api.DefaultTextPath,
		headers:  make(map[string]string),
		timeout:  defaultSourceTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Source{}, err
		}
	}

	return Source{
		baseURL:   baseURL,
		listPath:  cfg.listPath,
		textPath:  cfg.textPath,
		headers:   cfg.headers,
		timeout:   cfg.timeout,
		rateLimit: cfg.rateLimit,
		burst:     cfg.burst,
		extractor: cfg.extractor,
	}, nil
}

// clientConfig converts the source to the internal client configuration.
func (s Source) clientConfig() api.Config {
	extractor := s.extractor
	if extractor == nil {
		extractor = DefaultExtractor
	}
	return api.Config{
		BaseURL:   s.baseURL,
		ListPath:  s.listPath,
		TextPath:  s.textPath,
		Headers:   copyMap(s.headers),
		Timeout:   s.timeout,
		RateLimit: s.rateLimit,
		Burst:     s.burst,
		Extractor: api.TextExtractor(extractor),
	}
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
