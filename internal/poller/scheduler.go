package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/docwatch/internal/backoff"
	"github.com/jpalmerr/docwatch/internal/store"
)

// ErrEmptyResult is the failure reason recorded when a fetch succeeds but
// the document has no derived text yet.
var ErrEmptyResult = errors.New("no text available yet")

// Fetcher performs one status query for a document.
//
// A nil error with blank text means the document exists but its text is not
// ready. Both outcomes are retried identically; they differ only in the
// recorded failure kind.
type Fetcher interface {
	FetchText(ctx context.Context, key store.Key) (string, error)
}

// FetcherFunc adapts a function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, key store.Key) (string, error)

// FetchText calls f(ctx, key).
func (f FetcherFunc) FetchText(ctx context.Context, key store.Key) (string, error) {
	return f(ctx, key)
}

// WaitFunc blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithWaitFunc replaces the timer used between attempts.
// Tests use this to observe delays without sleeping.
func WithWaitFunc(wait WaitFunc) Option {
	return func(s *Scheduler) {
		if wait != nil {
			s.wait = wait
		}
	}
}

// loop is the bookkeeping for one running background loop.
type loop struct {
	cancel context.CancelFunc
	epoch  uint64
}

// Scheduler manages one background poll loop per document key.
//
// The store is the single source of truth for state; the scheduler keeps
// only its table of running loops. Its mutex is never held while the store
// notifies listeners, so listeners may call back into the scheduler.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	store   store.Store
	fetcher Fetcher
	policy  backoff.Policy
	logger  *slog.Logger
	wait    WaitFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	loops  map[store.Key]*loop
	closed bool
}

// NewScheduler creates a [Scheduler] writing into st.
//
// Parameters:
//   - st: Store receiving every state transition
//   - fetcher: Performs a single status query per attempt
//   - policy: Delay between failed attempts
//   - logger: Logger for attempt outcomes and recovered panics
//
// The scheduler is ready immediately. Call [Scheduler.Shutdown] to cancel
// all loops and wait for them to exit.
func NewScheduler(st store.Store, fetcher Fetcher, policy backoff.Policy, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:   st,
		fetcher: fetcher,
		policy:  policy,
		logger:  logger,
		wait:    sleepContext,
		ctx:     ctx,
		cancel:  cancel,
		loops:   make(map[store.Key]*loop),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartBackground begins a self-rescheduling poll loop for key.
//
// It is a no-op when a loop for key is already running, when key is already
// resolved, or after Shutdown. Concurrent calls for the same key start
// exactly one loop. Returns whether a new loop was started.
func (s *Scheduler) StartBackground(key store.Key) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if _, running := s.loops[key]; running {
		s.mu.Unlock()
		return false
	}
	if s.store.Get(key).IsResolved() {
		s.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(s.ctx)
	l := &loop{cancel: cancel, epoch: s.store.Epoch(key)}
	s.loops[key] = l
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, key, l)
	return true
}

// Stop cancels any pending retry for key.
//
// An attempt already in flight is not aborted beyond context cancellation;
// whatever it returns is discarded. Stop is safe to call when no loop is
// running. After Stop returns, no write started before it can land.
func (s *Scheduler) Stop(key store.Key) {
	s.mu.Lock()
	l := s.loops[key]
	delete(s.loops, key)
	// fence under s.mu so a concurrent StartBackground reads the new epoch
	s.store.Invalidate(key)
	s.mu.Unlock()

	if l != nil {
		l.cancel()
		s.logger.Debug("poll loop stopped", "key", string(key))
	}
}

// Release stops key and discards its state from the store.
func (s *Scheduler) Release(key store.Key) {
	s.Stop(key)
	s.store.Release(key)
}

// Active reports whether a background loop is running for key.
func (s *Scheduler) Active(key store.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[key]
	return ok
}

// TriggerOnce performs exactly one immediate fetch for key, independent of
// any background loop, and blocks until its outcome is recorded.
//
// Unless force is set, the call coalesces with existing work: if key is
// already loading or resolved nothing is fetched and the current state is
// returned with false. With force, a resolved key is polled again but keeps
// its text unless the new attempt also resolves.
//
// If ctx is done before the fetch returns, the outcome is discarded and the
// state held before the call is restored.
//
// A resolved outcome cancels the key's background loop.
func (s *Scheduler) TriggerOnce(ctx context.Context, key store.Key, force bool) (store.PollState, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.store.Get(key), false
	}
	epoch := s.store.Epoch(key)
	s.mu.Unlock()

	current := s.store.Get(key)
	if current.IsResolved() && !force {
		return current, false
	}

	var loading store.PollState
	if !current.IsResolved() {
		accept := notResolved
		if !force {
			accept = func(cur store.PollState) bool {
				return cur.Kind != store.KindLoading && !cur.IsResolved()
			}
		}
		loading = store.Loading(current.Attempt)
		if !s.store.Transition(key, epoch, loading, accept) {
			return s.store.Get(key), false
		}
	}

	next := s.attempt(ctx, key, current.Attempt)
	if ctx.Err() != nil {
		if loading.Kind == store.KindLoading {
			s.store.Transition(key, epoch, current, sameLoading(loading))
		}
		s.logger.Debug("manual attempt abandoned", "key", string(key), "error", ctx.Err().Error())
		return s.store.Get(key), true
	}
	if !s.store.Transition(key, epoch, next, keepResolved(next)) {
		s.logger.Debug("manual attempt discarded", "key", string(key), "kind", string(next.Kind))
		return s.store.Get(key), true
	}

	if next.IsResolved() {
		s.cancelLoop(key)
	}
	return next, true
}

// Resolve records text obtained outside the poll loop, such as from a
// document listing, and cancels the key's background loop.
//
// Returns false without writing if key is already resolved. Blank text is
// not a resolution and is ignored.
func (s *Scheduler) Resolve(key store.Key, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	epoch := s.store.Epoch(key)
	s.mu.Unlock()

	current := s.store.Get(key)
	if !s.store.Transition(key, epoch, store.Resolved(text, current.Attempt), notResolved) {
		return false
	}
	s.cancelLoop(key)
	return true
}

// Shutdown cancels every loop and waits for all loop goroutines to exit.
//
// Shutdown is idempotent. After Shutdown, StartBackground and TriggerOnce
// are no-ops.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cancel()
		s.loops = make(map[store.Key]*loop)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Wait blocks until every loop started so far has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// run is the background loop body for one key.
//
// Per key, attempts are strictly sequential: attempt n+1 is scheduled only
// after attempt n's outcome has been written.
func (s *Scheduler) run(ctx context.Context, key store.Key, l *loop) {
	defer s.wg.Done()
	defer s.forget(key, l)

	for n := 0; ; n++ {
		if ctx.Err() != nil {
			return
		}
		if !s.store.Transition(key, l.epoch, store.Loading(n), notResolved) {
			// stopped, released or resolved by a manual attempt
			return
		}

		next := s.attempt(ctx, key, n)
		if ctx.Err() != nil {
			return
		}
		if !s.store.Transition(key, l.epoch, next, keepResolved(next)) {
			return
		}
		if next.IsResolved() {
			s.logger.Info("document text resolved", "key", string(key), "attempts", n+1)
			return
		}

		delay := s.policy.Delay(n)
		s.logger.Debug("scheduling retry",
			"key", string(key),
			"attempt", n,
			"failure", string(next.Failure),
			"reason", next.Reason,
			"delay", delay.String(),
		)
		if err := s.wait(ctx, delay); err != nil {
			return
		}
	}
}

// cancelLoop cancels and forgets the running loop for key, if any.
// Unlike Stop it does not invalidate the key's epoch.
func (s *Scheduler) cancelLoop(key store.Key) {
	s.mu.Lock()
	l := s.loops[key]
	delete(s.loops, key)
	s.mu.Unlock()

	if l != nil {
		l.cancel()
	}
}

// forget removes l from the loop table if it is still the registered loop for key.
func (s *Scheduler) forget(key store.Key, l *loop) {
	s.mu.Lock()
	if s.loops[key] == l {
		delete(s.loops, key)
	}
	s.mu.Unlock()
	l.cancel()
}

// attempt performs one fetch and classifies its outcome.
func (s *Scheduler) attempt(ctx context.Context, key store.Key, n int) store.PollState {
	text, err := s.safeFetch(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("fetch attempt failed", "key", string(key), "attempt", n, "error", err.Error())
		return store.Failed(store.FailureFetch, err.Error(), n)
	case strings.TrimSpace(text) == "":
		return store.Failed(store.FailureEmpty, ErrEmptyResult.Error(), n)
	default:
		return store.Resolved(text, n)
	}
}

// safeFetch calls the fetcher with panic recovery.
// A panic is logged with a correlation ID and reported as a fetch failure.
func (s *Scheduler) safeFetch(ctx context.Context, key store.Key) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()

			s.logger.Error("fetcher panic",
				"correlation_id", correlationID,
				"key", string(key),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)

			text = ""
			err = fmt.Errorf("fetcher panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.fetcher.FetchText(ctx, key)
}

// notResolved accepts any state except resolved.
func notResolved(current store.PollState) bool {
	return !current.IsResolved()
}

// keepResolved returns the accept rule for writing next: a resolved result
// may replace anything, other outcomes never replace a resolved state.
func keepResolved(next store.PollState) func(store.PollState) bool {
	if next.IsResolved() {
		return nil
	}
	return notResolved
}

// sameLoading accepts only the exact loading state written by one attempt.
func sameLoading(loading store.PollState) func(store.PollState) bool {
	return func(current store.PollState) bool {
		return current.Kind == store.KindLoading && current.UpdatedAt.Equal(loading.UpdatedAt)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
