package docwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/docwatch/dashboard"
	"github.com/jpalmerr/docwatch/internal/api"
	"github.com/jpalmerr/docwatch/internal/poller"
	"github.com/jpalmerr/docwatch/internal/server"
	"github.com/jpalmerr/docwatch/internal/store"
)

const (
	defaultSyncInterval = 30 * time.Second
	defaultPort         = 8090
)

// ErrNoSource is returned by operations that need the document listing when
// the [Watcher] was built with a fetcher only.
var ErrNoSource = errors.New("no source configured")

// Document is one entry of the service's document listing.
type Document = api.Document

// Watcher polls documents until their derived text becomes available.
//
// Watcher owns one state store and one scheduler. Every document id gets at
// most one background loop; loops retry with capped exponential backoff
// until text appears, and state transitions are observable through
// [Watcher.Subscribe], [WithStateCallback], and the dashboard served by
// [Watcher.Start].
//
// The typical lifecycle is:
//
//	w, err := docwatch.New(docwatch.WithSource(src))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
//
// Watcher can also be driven without [Watcher.Start]: call [Watcher.Watch]
// and [Watcher.Refresh] directly and [Watcher.Close] when done.
type Watcher struct {
	title        string
	port         int
	syncInterval time.Duration
	documents    []string
	source       *Source
	client       *api.Client
	store        *store.MemoryStore
	scheduler    *poller.Scheduler
	logger       *slog.Logger

	unsubscribe func()
	closeOnce   sync.Once

	mu     sync.Mutex
	static map[store.Key]bool
	listed map[store.Key]bool
}

// New creates a new [Watcher] with the given options.
//
// A source ([WithSource]) or a fetcher ([WithFetcher]) must be configured.
// Other options have sensible defaults:
//   - Sync interval: 30 seconds
//   - Backoff: 1.5s growing by 1.25x, capped at 5s
//   - Port: 8090
//
// Returns an error if neither is configured, if a document id is listed
// twice, or if any option is invalid.
//
// Example:
//
//	w, err := docwatch.New(
//	    docwatch.WithSource(src),
//	    docwatch.WithDocuments("42", "43"),
//	    docwatch.WithPort(9090),
//	)
func New(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{
		syncInterval: defaultSyncInterval,
		backoff:      DefaultBackoff(),
		port:         defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.source == nil && cfg.fetch == nil {
		return nil, errors.New("a source or fetcher is required")
	}

	static := make(map[store.Key]bool, len(cfg.documents))
	for _, id := range cfg.documents {
		if static[store.Key(id)] {
			return nil, fmt.Errorf("duplicate document id: %q", id)
		}
		static[store.Key(id)] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var client *api.Client
	if cfg.source != nil {
		clientCfg := cfg.source.clientConfig()
		clientCfg.Logger = logger

		var err error
		client, err = api.New(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("invalid source: %w", err)
		}
	}

	fetch := cfg.fetch
	if fetch == nil {
		fetch = client.FetchText
	}

	st := store.NewMemoryStore(logger)
	fetcher := poller.FetcherFunc(func(ctx context.Context, key store.Key) (string, error) {
		return fetch(ctx, string(key))
	})

	w := &Watcher{
		title:        cfg.title,
		port:         cfg.port,
		syncInterval: cfg.syncInterval,
		documents:    cfg.documents,
		source:       cfg.source,
		client:       client,
		store:        st,
		scheduler:    poller.NewScheduler(st, fetcher, cfg.backoff.policy(), logger),
		logger:       logger,
		static:       static,
		listed:       make(map[store.Key]bool),
	}

	if len(cfg.stateCallbacks) > 0 {
		callbacks := cfg.stateCallbacks
		w.unsubscribe = st.Subscribe(func(key store.Key, ps store.PollState) {
			state := stateFromStore(key, ps)
			for _, cb := range callbacks {
				invokeCallbackSafe(cb, state, logger)
			}
		})
	}

	return w, nil
}

// Start watches the configured documents, runs list sync, and serves the
// dashboard until ctx is cancelled.
//
// During execution:
//
//   - Every document from [WithDocuments] is watched immediately
//   - With a source and a non-zero sync interval, the document list is
//     synced immediately and then at the configured interval
//   - The HTTP server listens on the configured port
//
// Start closes the Watcher before returning. Returns nil on graceful
// shutdown, or an error if the HTTP server fails to start.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("docwatch starting", "document_count", len(w.documents))
	w.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", w.port))

	defer w.Close()

	if ctx.Err() != nil {
		return nil
	}

	for _, id := range w.documents {
		w.Watch(id)
	}

	g, gctx := errgroup.WithContext(ctx)

	httpServer := server.NewServer(w.store, w.scheduler, w.port, dashboard.Assets, w.title, w.logger)
	if err := httpServer.Start(gctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if w.client != nil && w.syncInterval > 0 {
		w.logger.Info("list sync configured", "interval", w.syncInterval.String())
		g.Go(func() error {
			w.syncLoop(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	w.logger.Info("docwatch stopped")
	return err
}

// syncLoop runs [Watcher.Sync] immediately and then every sync interval.
func (w *Watcher) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(w.syncInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Sync(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("document list sync failed", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncReport summarizes one [Watcher.Sync] pass.
type SyncReport struct {
	// Listed is the number of documents in the listing.
	Listed int

	// Resolved counts documents whose text was taken from the listing.
	Resolved int

	// Started counts documents for which a new background loop started.
	Started int

	// Released counts documents no longer listed whose state was discarded.
	Released int
}

// Sync fetches the document list once and reconciles it with the watched set.
//
// Documents already carrying text in the listing are recorded as resolved
// without a text query. Documents lacking text are watched. Documents that
// a previous sync listed but this one does not are released, unless they
// were configured with [WithDocuments].
//
// Returns [ErrNoSource] if the Watcher has no source.
func (w *Watcher) Sync(ctx context.Context) (SyncReport, error) {
	docs, err := w.Documents(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	report := SyncReport{Listed: len(docs)}
	seen := make(map[store.Key]bool, len(docs))

	for _, doc := range docs {
		key := store.Key(doc.ID)
		if key == "" {
			continue
		}
		seen[key] = true

		if doc.HasText() {
			if w.scheduler.Resolve(key, doc.Text()) {
				report.Resolved++
			}
			continue
		}
		if w.scheduler.StartBackground(key) {
			report.Started++
		}
	}

	w.mu.Lock()
	previous := w.listed
	w.listed = seen
	w.mu.Unlock()

	for key := range previous {
		if seen[key] || w.static[key] {
			continue
		}
		w.scheduler.Release(key)
		report.Released++
	}

	w.logger.Debug("document list synced",
		"listed", report.Listed,
		"resolved", report.Resolved,
		"started", report.Started,
		"released", report.Released,
	)
	return report, nil
}

// Watch starts the background loop for document id.
//
// Watch is a no-op when a loop for id is already running or its text is
// already resolved. Returns whether a new loop was started.
func (w *Watcher) Watch(id string) bool {
	started := w.scheduler.StartBackground(store.Key(id))
	if started {
		w.logger.Debug("watching document", "id", id)
	}
	return started
}

// Refresh performs one immediate text query for id and returns its outcome.
//
// Without force, the call coalesces with existing work: if id is loading
// or resolved nothing is fetched, and the current state is returned with
// false. With force, a resolved document is queried again and keeps its
// text unless the new query also returns text.
func (w *Watcher) Refresh(ctx context.Context, id string, force bool) (State, bool) {
	ps, ran := w.scheduler.TriggerOnce(ctx, store.Key(id), force)
	return stateFromStore(store.Key(id), ps), ran
}

// Stop cancels pending retries for id but keeps its last state.
func (w *Watcher) Stop(id string) {
	w.scheduler.Stop(store.Key(id))
}

// Release stops id and discards its state.
func (w *Watcher) Release(id string) {
	w.scheduler.Release(store.Key(id))
}

// State returns the current state of id. Unknown ids are reported as [KindIdle].
func (w *Watcher) State(id string) State {
	return stateFromStore(store.Key(id), w.store.Get(store.Key(id)))
}

// States returns the current state of every known document, sorted by id.
func (w *Watcher) States() []State {
	entries := w.store.GetAll()
	states := make([]State, len(entries))
	for i, e := range entries {
		states[i] = stateFromStore(e.Key, e.PollState)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// Subscribe registers fn to observe every state transition.
//
// fn runs synchronously on the goroutine that recorded the transition and
// must not block. Panics are recovered and logged. The returned function
// removes the subscription; it is idempotent.
func (w *Watcher) Subscribe(fn func(State)) (unsubscribe func()) {
	return w.store.Subscribe(func(key store.Key, ps store.PollState) {
		invokeCallbackSafe(fn, stateFromStore(key, ps), w.logger)
	})
}

// Documents returns the source's current document listing.
//
// Returns [ErrNoSource] if the Watcher has no source.
func (w *Watcher) Documents(ctx context.Context) ([]Document, error) {
	if w.client == nil {
		return nil, ErrNoSource
	}
	return w.client.ListDocuments(ctx)
}

// Close stops every loop and releases the HTTP client's idle connections.
//
// Close blocks until all loops have exited. It is idempotent.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.scheduler.Shutdown()
		if w.unsubscribe != nil {
			w.unsubscribe()
		}
		w.client.Close()
	})
}

// Port returns the configured HTTP port for the dashboard server.
func (w *Watcher) Port() int {
	return w.port
}

// SyncInterval returns the configured list sync interval. Zero means disabled.
func (w *Watcher) SyncInterval() time.Duration {
	return w.syncInterval
}

// Source returns the configured source and whether one is set.
func (w *Watcher) Source() (Source, bool) {
	if w.source == nil {
		return Source{}, false
	}
	return *w.source, true
}

// StaticDocuments returns the ids configured with [WithDocuments], in configuration order.
func (w *Watcher) StaticDocuments() []string {
	cp := make([]string, len(w.documents))
	copy(cp, w.documents)
	return cp
}

// invokeCallbackSafe calls a state callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(State), state State, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("state callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"id", state.ID,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(state)
}
