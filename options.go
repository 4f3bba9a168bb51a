package docwatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// FetchFunc performs one text query for a document id.
//
// A nil error with blank text means the text is not ready yet.
type FetchFunc func(ctx context.Context, id string) (string, error)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	title          string
	source         *Source
	fetch          FetchFunc
	documents      []string
	syncInterval   time.Duration
	backoff        Backoff
	port           int
	logger         *slog.Logger
	stateCallbacks []func(State)
}

// Option is a function that configures a [Watcher] instance during construction.
//
// Option implements the functional options pattern. Options return an
// error if validation fails.
//
// Built-in options: [WithSource], [WithFetcher], [WithDocuments],
// [WithSyncInterval], [WithBackoff], [WithPort], [WithLogger],
// [WithStateCallback], [WithTitle].
type Option func(*watcherConfig) error

// WithSource sets the documents service to list and poll.
//
// Either a source or a fetcher ([WithFetcher]) must be configured for [New]
// to succeed. Without a source, list sync and [Watcher.Documents] are unavailable.
func WithSource(src Source) Option {
	return func(cfg *watcherConfig) error {
		if src.baseURL == "" {
			return errors.New("source must be created with NewSource")
		}
		cfg.source = &src
		return nil
	}
}

// WithFetcher replaces the source's text query with fn.
//
// Use this to poll something other than the HTTP text endpoint, or in tests.
// List sync still uses the source when one is configured.
//
// Returns an error if fn is nil.
func WithFetcher(fn FetchFunc) Option {
	return func(cfg *watcherConfig) error {
		if fn == nil {
			return errors.New("fetcher cannot be nil")
		}
		cfg.fetch = fn
		return nil
	}
}

// WithDocuments adds document ids that are watched from startup.
//
// These documents are never released by list sync, even if the service
// stops listing them. Can be called multiple times.
//
// Returns an error if any id is blank.
func WithDocuments(ids ...string) Option {
	return func(cfg *watcherConfig) error {
		for _, id := range ids {
			if strings.TrimSpace(id) == "" {
				return errors.New("document id cannot be empty")
			}
		}
		cfg.documents = append(cfg.documents, ids...)
		return nil
	}
}

// WithSyncInterval sets how often the document list is fetched while
// [Watcher.Start] runs.
//
// Each sync starts polling for newly listed documents lacking text, records
// text already present in the listing, and releases documents that are no
// longer listed. Zero disables list sync. Defaults to 30 seconds.
//
// Returns an error if the duration is negative.
func WithSyncInterval(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d < 0 {
			return errors.New("sync interval must not be negative")
		}
		cfg.syncInterval = d
		return nil
	}
}

// WithBackoff sets the delay policy between failed attempts.
//
// Defaults to [DefaultBackoff]: 1.5s growing by 1.25x per attempt, capped at 5s.
//
// Returns an error if the policy is invalid.
func WithBackoff(b Backoff) Option {
	return func(cfg *watcherConfig) error {
		if err := b.policy().Validate(); err != nil {
			return err
		}
		cfg.backoff = b
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// Defaults to 8090 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *watcherConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStateCallback registers a function to be called on every state transition.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// IMPORTANT: Callbacks run synchronously on the goroutine that recorded the
// transition, usually a poll loop. Long-running work should be dispatched
// to a separate goroutine. Callbacks may call back into the [Watcher].
//
// Panics within callbacks are recovered and logged.
//
// Example:
//
//	w, err := docwatch.New(
//	    docwatch.WithSource(src),
//	    docwatch.WithStateCallback(func(s docwatch.State) {
//	        if s.Resolved() {
//	            log.Printf("document %s: %d chars", s.ID, len(s.Text))
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithStateCallback(cb func(State)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.stateCallbacks = append(cfg.stateCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "docwatch".
func WithTitle(title string) Option {
	return func(cfg *watcherConfig) error {
		cfg.title = title
		return nil
	}
}
