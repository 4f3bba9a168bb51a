package store

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(nil)
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	// should start empty
	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_GetUnknownIsIdle(t *testing.T) {
	store := newTestStore()

	got := store.Get("missing")
	if got.Kind != KindIdle {
		t.Errorf("Get(missing).Kind = %v, want %v", got.Kind, KindIdle)
	}
}

func TestMemoryStore_SetReplacesWholeState(t *testing.T) {
	store := newTestStore()

	store.Set("42", Failed(FailureEmpty, "no text yet", 3))
	store.Set("42", Resolved("hello", 4))

	got := store.Get("42")
	if got.Kind != KindResolved {
		t.Fatalf("Kind = %v, want %v", got.Kind, KindResolved)
	}
	if got.Text != "hello" {
		t.Errorf("Text = %q, want %q", got.Text, "hello")
	}
	// fields of the previous variant must not leak into the new one
	if got.Failure != "" || got.Reason != "" {
		t.Errorf("resolved state carries failure fields: %+v", got)
	}
}

func TestMemoryStore_SubscribeReceivesWrites(t *testing.T) {
	store := newTestStore()

	var got []Kind
	unsubscribe := store.Subscribe(func(key Key, state PollState) {
		if key != "42" {
			t.Errorf("listener key = %q, want %q", key, "42")
		}
		got = append(got, state.Kind)
	})
	defer unsubscribe()

	store.Set("42", Loading(0))
	store.Set("42", Resolved("hello", 0))

	want := []Kind{KindLoading, KindResolved}
	if len(got) != len(want) {
		t.Fatalf("listener saw %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := newTestStore()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		store.Subscribe(func(Key, PollState) { calls.Add(1) })
	}

	store.Set("1", Loading(0))

	if calls.Load() != 3 {
		t.Errorf("listener calls = %d, want 3", calls.Load())
	}
}

func TestMemoryStore_UnsubscribeIsIdempotent(t *testing.T) {
	store := newTestStore()

	var calls atomic.Int32
	unsubscribe := store.Subscribe(func(Key, PollState) { calls.Add(1) })

	unsubscribe()
	unsubscribe()

	store.Set("1", Loading(0))
	if calls.Load() != 0 {
		t.Errorf("listener called %d times after unsubscribe, want 0", calls.Load())
	}
}

func TestMemoryStore_UnsubscribeFromInsideCallback(t *testing.T) {
	store := newTestStore()

	var calls atomic.Int32
	var unsubscribe func()
	unsubscribe = store.Subscribe(func(Key, PollState) {
		calls.Add(1)
		unsubscribe()
	})

	store.Set("1", Loading(0))
	store.Set("1", Loading(1))

	if calls.Load() != 1 {
		t.Errorf("listener calls = %d, want 1", calls.Load())
	}
}

func TestMemoryStore_UnsubscribeOtherListenerDuringNotify(t *testing.T) {
	store := newTestStore()

	var secondCalls atomic.Int32
	var unsubscribeSecond func()
	store.Subscribe(func(Key, PollState) { unsubscribeSecond() })
	unsubscribeSecond = store.Subscribe(func(Key, PollState) { secondCalls.Add(1) })

	store.Set("1", Loading(0))

	if secondCalls.Load() != 0 {
		t.Errorf("removed listener called %d times, want 0", secondCalls.Load())
	}
}

func TestMemoryStore_ListenerMayWriteBack(t *testing.T) {
	store := newTestStore()

	store.Subscribe(func(key Key, state PollState) {
		if key == "source" {
			store.Set("mirror", state)
		}
	})

	store.Set("source", Resolved("copied", 0))

	if got := store.Get("mirror"); got.Text != "copied" {
		t.Errorf("mirror.Text = %q, want %q", got.Text, "copied")
	}
}

func TestMemoryStore_ListenerPanicRecovered(t *testing.T) {
	var logs bytes.Buffer
	store := NewMemoryStore(slog.New(slog.NewTextHandler(&logs, nil)))

	var afterPanic atomic.Int32
	store.Subscribe(func(Key, PollState) { panic("boom") })
	store.Subscribe(func(Key, PollState) { afterPanic.Add(1) })

	store.Set("1", Loading(0))

	if afterPanic.Load() != 1 {
		t.Errorf("listener after panicking one called %d times, want 1", afterPanic.Load())
	}
	if !strings.Contains(logs.String(), "correlation_id") {
		t.Errorf("panic log missing correlation_id: %s", logs.String())
	}
	if got := store.Get("1"); got.Kind != KindLoading {
		t.Errorf("state after listener panic = %v, want %v", got.Kind, KindLoading)
	}
}

func TestMemoryStore_TransitionRejectsStaleEpoch(t *testing.T) {
	store := newTestStore()

	epoch := store.Epoch("42")
	if !store.Transition("42", epoch, Loading(0), nil) {
		t.Fatal("Transition() with current epoch = false, want true")
	}

	store.Invalidate("42")

	if store.Transition("42", epoch, Resolved("late", 0), nil) {
		t.Error("Transition() with stale epoch = true, want false")
	}
	if got := store.Get("42"); got.Kind != KindLoading {
		t.Errorf("state = %v, want %v (stale write must be discarded)", got.Kind, KindLoading)
	}
}

func TestMemoryStore_TransitionAccept(t *testing.T) {
	store := newTestStore()
	store.Set("42", Resolved("done", 0))

	notResolved := func(current PollState) bool { return !current.IsResolved() }

	var events atomic.Int32
	store.Subscribe(func(Key, PollState) { events.Add(1) })

	if store.Transition("42", store.Epoch("42"), Loading(1), notResolved) {
		t.Error("Transition() over resolved state = true, want false")
	}
	if events.Load() != 0 {
		t.Errorf("rejected transition notified %d listeners, want 0", events.Load())
	}
	if got := store.Get("42"); got.Text != "done" {
		t.Errorf("Text = %q, want %q", got.Text, "done")
	}
}

func TestMemoryStore_TransitionAcceptSeesIdleForUnknown(t *testing.T) {
	store := newTestStore()

	var seen Kind
	store.Transition("new", 0, Loading(0), func(current PollState) bool {
		seen = current.Kind
		return true
	})

	if seen != KindIdle {
		t.Errorf("accept saw %v, want %v", seen, KindIdle)
	}
}

func TestMemoryStore_Release(t *testing.T) {
	store := newTestStore()
	store.Set("42", Loading(0))
	epoch := store.Epoch("42")

	var last PollState
	store.Subscribe(func(_ Key, state PollState) { last = state })

	store.Release("42")

	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() after Release = %v items, want 0", len(store.GetAll()))
	}
	if last.Kind != KindIdle {
		t.Errorf("release notification = %v, want %v", last.Kind, KindIdle)
	}
	if store.Transition("42", epoch, Resolved("late", 0), nil) {
		t.Error("Transition() after Release with old epoch = true, want false")
	}
}

func TestMemoryStore_ReleaseUnknownDoesNotNotify(t *testing.T) {
	store := newTestStore()

	var events atomic.Int32
	store.Subscribe(func(Key, PollState) { events.Add(1) })

	store.Release("never-seen")

	if events.Load() != 0 {
		t.Errorf("Release(unknown) notified %d times, want 0", events.Load())
	}
}

func TestMemoryStore_GetAllSorted(t *testing.T) {
	store := newTestStore()
	store.Set("3", Loading(0))
	store.Set("1", Loading(0))
	store.Set("2", Loading(0))

	all := store.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() = %v items, want 3", len(all))
	}
	for i, want := range []Key{"1", "2", "3"} {
		if all[i].Key != want {
			t.Errorf("GetAll()[%d].Key = %v, want %v", i, all[i].Key, want)
		}
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore()

	var wg sync.WaitGroup
	numGoroutines := 10
	numUpdates := 100

	// concurrent writes
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				store.Set("doc", Loading(j))
				store.Transition("doc", store.Epoch("doc"), Failed(FailureEmpty, "empty", j), nil)
			}
		}()
	}

	// concurrent reads
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_ = store.Get("doc")
				_ = store.GetAll()
			}
		}()
	}

	// concurrent subscribe/unsubscribe
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsubscribe := store.Subscribe(func(Key, PollState) {})
			store.Invalidate("other")
			unsubscribe()
		}()
	}

	wg.Wait()
}
