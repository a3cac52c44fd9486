package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func seqIDs() func() string {
	var n int64
	return func() string { return fmt.Sprintf("sess-%d", atomic.AddInt64(&n, 1)) }
}

func newTestStore(clock *fakeClock) *Store {
	return NewStore(WithClock(clock.Now), WithIDGenerator(seqIDs()))
}

func TestStoreCreate(t *testing.T) {
	st := newTestStore(newFakeClock())
	a := st.Create("+15551234567")
	b := st.Create("+15551234567")

	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.Status != StatusCreated || a.CarrierCallID != "" || len(a.Transcript) != 0 {
		t.Fatalf("unexpected new session: %+v", a)
	}
	if st.Len() != 2 {
		t.Fatalf("Len() = %d", st.Len())
	}
}

func TestStoreCreateSkipsTakenIDs(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	i := 0
	st := NewStore(WithIDGenerator(func() string { id := ids[i]; i++; return id }))
	first := st.Create("+15551234567")
	second := st.Create("+15551234567")
	if first.ID != "dup" || second.ID != "fresh" {
		t.Fatalf("ids = %q, %q", first.ID, second.ID)
	}
}

func TestStoreDefaultIDsAreUUIDs(t *testing.T) {
	s := NewStore().Create("+15551234567")
	if len(s.ID) != 36 {
		t.Fatalf("expected uuid, got %q", s.ID)
	}
}

func TestStoreBindCarrierID(t *testing.T) {
	st := newTestStore(newFakeClock())
	s := st.Create("+15551234567")

	if err := st.BindCarrierID("missing", "CA1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.BindCarrierID(s.ID, " "); err == nil {
		t.Fatalf("expected error for empty carrier id")
	}
	if err := st.BindCarrierID(s.ID, "CA123"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	// Second bind is a no-op, not an overwrite.
	if err := st.BindCarrierID(s.ID, "CA999"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	got, err := st.Get(s.ID)
	if err != nil || got.CarrierCallID != "CA123" {
		t.Fatalf("carrier id = %q, %v", got.CarrierCallID, err)
	}
	if _, err := st.Resolve("CA999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ignored bind must not be indexed, got %v", err)
	}

	other := st.Create("+15557654321")
	if err := st.BindCarrierID(other.ID, "CA123"); !errors.Is(err, ErrCarrierIDConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := st.BindCarrierID(other.ID, s.ID); !errors.Is(err, ErrCarrierIDConflict) {
		t.Fatalf("carrier id shadowing a session id must conflict, got %v", err)
	}
}

func TestStoreResolveDualKey(t *testing.T) {
	st := newTestStore(newFakeClock())
	s := st.Create("+15551234567")

	before, err := st.Resolve(s.ID)
	if err != nil || before.ID != s.ID {
		t.Fatalf("resolve by session id before bind: %+v, %v", before, err)
	}
	if err := st.BindCarrierID(s.ID, "CA123"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	byCarrier, err := st.Resolve("CA123")
	if err != nil {
		t.Fatalf("resolve by carrier id: %v", err)
	}
	bySession, err := st.Resolve(s.ID)
	if err != nil {
		t.Fatalf("resolve by session id: %v", err)
	}
	if byCarrier.ID != bySession.ID || byCarrier.ID != s.ID {
		t.Fatalf("dual keys resolved to different sessions: %q vs %q", byCarrier.ID, bySession.ID)
	}
	if _, err := st.Resolve("CA404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.Resolve(""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}
	if _, err := st.Get("CA123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get only accepts session ids, got %v", err)
	}
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	st := newTestStore(newFakeClock())
	s := st.Create("+15551234567")
	if _, err := st.Mutate(s.ID, func(s *Session) error {
		s.Transcript = append(s.Transcript, Turn{Speaker: SpeakerCaller, Text: "hello"})
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	snap, _ := st.Get(s.ID)
	snap.Transcript[0].Text = "tampered"

	again, _ := st.Get(s.ID)
	if again.Transcript[0].Text != "hello" {
		t.Fatalf("snapshot mutation leaked into the store")
	}
}

func TestStoreMutateRollsBackOnError(t *testing.T) {
	st := newTestStore(newFakeClock())
	s := st.Create("+15551234567")
	boom := errors.New("boom")

	_, err := st.Mutate(s.ID, func(s *Session) error {
		s.Status = StatusActive
		s.Transcript = append(s.Transcript, Turn{Speaker: SpeakerCaller, Text: "x"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ := st.Get(s.ID)
	if got.Status != StatusCreated || len(got.Transcript) != 0 {
		t.Fatalf("failed mutation was committed: %+v", got)
	}
	if _, err := st.Mutate("missing", func(*Session) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreMutateEnforcesAppendOnly(t *testing.T) {
	st := newTestStore(newFakeClock())
	s := st.Create("+15551234567")
	if _, err := st.Mutate(s.ID, func(s *Session) error {
		s.Transcript = append(s.Transcript, Turn{Speaker: SpeakerCaller, Text: "first"})
		return nil
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	edits := map[string]func(*Session){
		"truncate": func(s *Session) { s.Transcript = s.Transcript[:0] },
		"rewrite":  func(s *Session) { s.Transcript[0].Text = "edited" },
		"to":       func(s *Session) { s.To = "+15550000000" },
		"id":       func(s *Session) { s.ID = "other" },
		"carrier":  func(s *Session) { s.CarrierCallID = "CA1" },
	}
	for name, edit := range edits {
		_, err := st.Mutate(s.ID, func(s *Session) error { edit(s); return nil })
		if !errors.Is(err, ErrInvariant) {
			t.Fatalf("%s: expected ErrInvariant, got %v", name, err)
		}
	}
	got, _ := st.Get(s.ID)
	if len(got.Transcript) != 1 || got.Transcript[0].Text != "first" || got.To != "+15551234567" {
		t.Fatalf("invariant violation committed: %+v", got)
	}
}

func TestStoreMutateRejectsBackwardStatus(t *testing.T) {
	st := newTestStore(newFakeClock())
	s := st.Create("+15551234567")
	if _, err := st.Mutate(s.ID, func(s *Session) error { s.Status = StatusActive; return nil }); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err := st.Mutate(s.ID, func(s *Session) error { s.Status = StatusRinging; return nil })
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
}

func TestStoreTerminalSessionsAreFrozen(t *testing.T) {
	clock := newFakeClock()
	st := newTestStore(clock)
	s := st.Create("+15551234567")

	var fired []Session
	st.OnTerminal(func(s Session) { fired = append(fired, s) })

	clock.Advance(time.Minute)
	ended, err := st.Mutate(s.ID, func(s *Session) error { s.Status = StatusEnded; return nil })
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.EndedAt == nil || !ended.EndedAt.Equal(clock.Now()) {
		t.Fatalf("EndedAt not stamped: %+v", ended.EndedAt)
	}

	mutations := []func(*Session){
		func(s *Session) { s.Status = StatusRinging },
		func(s *Session) { s.Status = StatusFailed },
		func(s *Session) { s.Transcript = append(s.Transcript, Turn{Speaker: SpeakerCaller, Text: "late"}) },
	}
	for i, m := range mutations {
		_, err := st.Mutate(s.ID, func(s *Session) error { m(s); return nil })
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("mutation %d: expected ErrSessionClosed, got %v", i, err)
		}
	}

	got, _ := st.Get(s.ID)
	if got.Status != StatusEnded || len(got.Transcript) != 0 {
		t.Fatalf("terminal session changed: %+v", got)
	}
	if len(fired) != 1 || fired[0].ID != s.ID || fired[0].Status != StatusEnded {
		t.Fatalf("expected one terminal hook call, got %+v", fired)
	}
}

func TestStoreWithTurn(t *testing.T) {
	st := newTestStore(newFakeClock())
	if err := st.WithTurn("missing", func() error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := st.Create("+15551234567")
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.WithTurn(s.ID, func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("turns overlapped: %d concurrent", maxInside)
	}
}

func TestStoreConcurrentMutationsAcrossSessions(t *testing.T) {
	st := NewStore()
	const sessions, appends = 10, 50
	ids := make([]string, sessions)
	for i := range ids {
		ids[i] = st.Create("+15551234567").ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := 0; j < appends; j++ {
			wg.Add(1)
			go func(id string, j int) {
				defer wg.Done()
				_, err := st.Mutate(id, func(s *Session) error {
					s.Transcript = append(s.Transcript, Turn{Speaker: SpeakerCaller, Text: fmt.Sprint(j)})
					return nil
				})
				if err != nil {
					t.Errorf("mutate: %v", err)
				}
			}(id, j)
		}
	}
	wg.Wait()

	for _, id := range ids {
		s, _ := st.Get(id)
		if len(s.Transcript) != appends {
			t.Fatalf("session %s has %d turns, want %d", id, len(s.Transcript), appends)
		}
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	clock := newFakeClock()
	st := newTestStore(clock)
	first := st.Create("+15551111111")
	clock.Advance(time.Second)
	second := st.Create("+15552222222")

	list := st.List()
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestStoreSweep(t *testing.T) {
	clock := newFakeClock()
	st := newTestStore(clock)

	old := st.Create("+15551111111")
	_ = st.BindCarrierID(old.ID, "CA-old")
	live := st.Create("+15552222222")
	recent := st.Create("+15553333333")

	if _, err := st.Mutate(old.ID, func(s *Session) error { s.Status = StatusEnded; return nil }); err != nil {
		t.Fatalf("end old: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := st.Mutate(recent.ID, func(s *Session) error { s.Status = StatusFailed; return nil }); err != nil {
		t.Fatalf("fail recent: %v", err)
	}

	if n := st.Sweep(0); n != 0 {
		t.Fatalf("zero retention must keep everything, removed %d", n)
	}
	if n := st.Sweep(time.Hour); n != 1 {
		t.Fatalf("Sweep() removed %d, want 1", n)
	}
	if _, err := st.Resolve("CA-old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("carrier index not cleaned: %v", err)
	}
	if _, err := st.Get(live.ID); err != nil {
		t.Fatalf("live session evicted: %v", err)
	}
	if _, err := st.Get(recent.ID); err != nil {
		t.Fatalf("recent session evicted: %v", err)
	}
}

func TestStoreJanitorStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	st := newTestStore(clock)
	s := st.Create("+15551111111")
	if _, err := st.Mutate(s.ID, func(s *Session) error { s.Status = StatusEnded; return nil }); err != nil {
		t.Fatalf("end: %v", err)
	}
	clock.Advance(time.Hour)

	swept := make(chan int, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.StartJanitor(ctx, 5*time.Millisecond, time.Minute, func(n int) {
		select {
		case swept <- n:
		default:
		}
	})

	select {
	case n := <-swept:
		if n != 1 {
			t.Fatalf("janitor removed %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not sweep")
	}
	if st.Len() != 0 {
		t.Fatalf("Len() = %d after sweep", st.Len())
	}
}
