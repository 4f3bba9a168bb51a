package store

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of [Store].
//
// States are keyed by document key, with new writes replacing previous
// values. Listeners are called synchronously on the writing goroutine after
// the store lock is released, so a listener may call back into the store.
// Panicking listeners are recovered and logged.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key]PollState
	epochs map[Key]uint64

	subMu     sync.RWMutex
	listeners map[uint64]Listener
	nextSubID uint64

	logger *slog.Logger
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// If logger is nil, slog.Default() is used for reporting listener panics.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		states:    make(map[Key]PollState),
		epochs:    make(map[Key]uint64),
		listeners: make(map[uint64]Listener),
		logger:    logger,
	}
}

// Get returns the current state for key, or Idle() when unknown.
func (m *MemoryStore) Get(key Key) PollState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[key]
	if !ok {
		return Idle()
	}
	return state
}

// Set unconditionally replaces the state for key and notifies listeners.
func (m *MemoryStore) Set(key Key, state PollState) {
	m.mu.Lock()
	m.states[key] = state
	m.mu.Unlock()

	m.notify(key, state)
}

// Epoch returns the current write generation for key.
func (m *MemoryStore) Epoch(key Key) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epochs[key]
}

// Invalidate advances the write generation for key.
//
// Epochs are kept after Release so that a stale writer can never match a
// recycled generation.
func (m *MemoryStore) Invalidate(key Key) {
	m.mu.Lock()
	m.epochs[key]++
	m.mu.Unlock()
}

// Transition applies next when epoch is current and accept approves the
// current state. The check and the replacement happen under one lock.
func (m *MemoryStore) Transition(key Key, epoch uint64, next PollState, accept func(current PollState) bool) bool {
	m.mu.Lock()
	if m.epochs[key] != epoch {
		m.mu.Unlock()
		return false
	}
	if accept != nil {
		current, ok := m.states[key]
		if !ok {
			current = Idle()
		}
		if !accept(current) {
			m.mu.Unlock()
			return false
		}
	}
	m.states[key] = next
	m.mu.Unlock()

	m.notify(key, next)
	return true
}

// Release discards the state for key and fences off pending writes.
// Listeners receive Idle() only if the key had a state.
func (m *MemoryStore) Release(key Key) {
	m.mu.Lock()
	m.epochs[key]++
	_, existed := m.states[key]
	delete(m.states, key)
	m.mu.Unlock()

	if existed {
		m.notify(key, Idle())
	}
}

// GetAll returns a snapshot of all stored states sorted by key.
//
// The returned slice is a copy; modifications do not affect the store.
func (m *MemoryStore) GetAll() []Entry {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.states))
	for key, state := range m.states {
		entries = append(entries, Entry{Key: key, PollState: state})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Subscribe registers fn and returns its unsubscribe function.
func (m *MemoryStore) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.listeners[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.listeners, id)
			m.subMu.Unlock()
		})
	}
}

// notify calls every listener registered at the time of the write.
//
// The listener set is copied first so listeners can subscribe or
// unsubscribe from inside a callback without deadlocking.
func (m *MemoryStore) notify(key Key, state PollState) {
	m.subMu.RLock()
	if len(m.listeners) == 0 {
		m.subMu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	m.subMu.RUnlock()

	// registration order
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m.subMu.RLock()
		fn, ok := m.listeners[id]
		m.subMu.RUnlock()
		if !ok {
			// removed by an earlier listener in this round
			continue
		}
		m.callSafe(fn, key, state)
	}
}

// callSafe invokes a listener with panic recovery.
func (m *MemoryStore) callSafe(fn Listener, key Key, state PollState) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("store listener panic",
				"correlation_id", uuid.NewString(),
				"key", string(key),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(key, state)
}

var _ Store = (*MemoryStore)(nil)
