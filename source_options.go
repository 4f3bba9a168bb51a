package docwatch

import (
	"errors"
	"strings"
	"time"

	"github.com/jpalmerr/docwatch/internal/api"
)

// sourceConfig holds mutable state during source construction.
type sourceConfig struct {
	listPath  string
	textPath  string
	headers   map[string]string
	timeout   time.Duration
	rateLimit float64
	burst     int
	extractor TextExtractor
}

// SourceOption is a function that configures a [Source] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithListPath], [WithTextPath], [WithHeaders],
// [WithTimeout], [WithRateLimit], [WithExtractor].
type SourceOption func(*sourceConfig) error

// WithListPath sets the path, relative to the base URL, that lists documents.
//
// The response must be a JSON array of document objects.
//
// Returns an error if the path is empty.
func WithListPath(path string) SourceOption {
	return func(cfg *sourceConfig) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("list path cannot be empty")
		}
		cfg.listPath = path
		return nil
	}
}

// WithTextPath sets the per-document text path, relative to the base URL.
//
// The path must contain the "{id}" placeholder, which is replaced with the
// escaped document id on every request.
//
// Example:
//
//	src, err := docwatch.NewSource(base,
//	    docwatch.WithTextPath("/api/documents/{id}/ocr"),
//	)
func WithTextPath(path string) SourceOption {
	return func(cfg *sourceConfig) error {
		if !strings.Contains(path, api.IDPlaceholder) {
			return errors.New("text path must contain " + api.IDPlaceholder)
		}
		cfg.textPath = path
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every request to the source.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	src, err := docwatch.NewSource(base,
//	    docwatch.WithHeaders("Authorization", "Bearer token123"),
//	)
func WithHeaders(keyValues ...string) SourceOption {
	return func(cfg *sourceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout.
//
// A request exceeding the timeout counts as a failed attempt and is retried
// with backoff like any other failure. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) SourceOption {
	return func(cfg *sourceConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithRateLimit caps requests to the source across all documents.
//
// perSecond is the sustained rate; burst is the number of requests allowed
// at once. Use this when many documents are watched against one service.
//
// Returns an error if perSecond is not positive or burst is less than 1.
func WithRateLimit(perSecond float64, burst int) SourceOption {
	return func(cfg *sourceConfig) error {
		if perSecond <= 0 {
			return errors.New("rate limit must be positive")
		}
		if burst < 1 {
			return errors.New("burst must be at least 1")
		}
		cfg.rateLimit = perSecond
		cfg.burst = burst
		return nil
	}
}

// WithExtractor sets the [TextExtractor] applied to text responses.
//
// If not specified, [DefaultExtractor] is used.
func WithExtractor(e TextExtractor) SourceOption {
	return func(cfg *sourceConfig) error {
		cfg.extractor = e
		return nil
	}
}
