package calls

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry owns one session. mu guards s and is only held for in-memory work.
// turnMu serializes whole speech turns, including the generation call, so a
// caller/assistant pair is never split by another turn of the same session.
type entry struct {
	mu     sync.Mutex
	turnMu sync.Mutex
	s      Session
}

// Store is the in-memory session table with a primary index on session id and
// a secondary index on the carrier call id.
//
// Lock order: Store.mu before entry.mu. Mutation callbacks run under entry.mu
// only, so sessions never block each other.
type Store struct {
	mu        sync.RWMutex
	byID      map[string]*entry
	byCarrier map[string]string

	clock func() time.Time
	newID func() string

	hooksMu    sync.RWMutex
	onTerminal []func(Session)
}

type StoreOption func(*Store)

func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		byID:      make(map[string]*entry),
		byCarrier: make(map[string]string),
		clock:     time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnTerminal registers a hook fired once when a session reaches ended or failed.
// Hooks run after the session lock is released.
func (st *Store) OnTerminal(fn func(Session)) {
	if fn == nil {
		return
	}
	st.hooksMu.Lock()
	defer st.hooksMu.Unlock()
	st.onTerminal = append(st.onTerminal, fn)
}

// Create allocates a session in status created. It never fails.
func (st *Store) Create(to string) Session {
	now := st.clock().UTC()
	e := &entry{s: Session{
		To:         strings.TrimSpace(to),
		Status:     StatusCreated,
		Transcript: []Turn{},
		StartedAt:  now,
		UpdatedAt:  now,
	}}

	st.mu.Lock()
	id := st.newID()
	for {
		_, taken := st.byID[id]
		_, shadowed := st.byCarrier[id]
		if !taken && !shadowed {
			break
		}
		id = st.newID()
	}
	e.s.ID = id
	st.byID[id] = e
	st.mu.Unlock()

	return e.s.clone()
}

// BindCarrierID sets the secondary key once. Binding again is a no-op.
func (st *Store) BindCarrierID(sessionID, carrierCallID string) error {
	carrierCallID = strings.TrimSpace(carrierCallID)
	if carrierCallID == "" {
		return errors.New("calls: carrier call id required")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	if owner, bound := st.byCarrier[carrierCallID]; bound && owner != sessionID {
		return ErrCarrierIDConflict
	}
	if _, clash := st.byID[carrierCallID]; clash && carrierCallID != sessionID {
		return ErrCarrierIDConflict
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.CarrierCallID != "" {
		return nil
	}
	e.s.CarrierCallID = carrierCallID
	e.s.UpdatedAt = st.clock().UTC()
	st.byCarrier[carrierCallID] = sessionID
	return nil
}

// Resolve looks identifier up as a carrier call id first, then as a session id.
func (st *Store) Resolve(identifier string) (Session, error) {
	e, ok := st.lookup(identifier)
	if !ok {
		return Session{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.clone(), nil
}

// Get returns a session by session id only.
func (st *Store) Get(sessionID string) (Session, error) {
	e, ok := st.entry(sessionID)
	if !ok {
		return Session{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.clone(), nil
}

// Mutate applies fn to a copy of the session under the session's lock and
// commits the copy only if fn succeeds and the session invariants still hold.
func (st *Store) Mutate(sessionID string, fn func(*Session) error) (Session, error) {
	e, ok := st.entry(sessionID)
	if !ok {
		return Session{}, ErrNotFound
	}

	e.mu.Lock()
	before := e.s
	next := before.clone()
	if err := fn(&next); err != nil {
		e.mu.Unlock()
		return before.clone(), err
	}
	if err := checkTransition(before, next); err != nil {
		e.mu.Unlock()
		return before.clone(), err
	}

	now := st.clock().UTC()
	next.UpdatedAt = now
	terminated := !before.Status.Terminal() && next.Status.Terminal()
	if terminated && next.EndedAt == nil {
		next.EndedAt = &now
	}
	e.s = next
	out := next.clone()
	e.mu.Unlock()

	if terminated {
		st.fireTerminal(out)
	}
	return out, nil
}

// WithTurn runs fn while holding the session's turn lock.
func (st *Store) WithTurn(sessionID string, fn func() error) error {
	e, ok := st.entry(sessionID)
	if !ok {
		return ErrNotFound
	}
	e.turnMu.Lock()
	defer e.turnMu.Unlock()
	return fn()
}

// List returns a snapshot of every session, newest first.
func (st *Store) List() []Session {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.byID))
	for _, e := range st.byID {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.s.clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// Sweep evicts terminal sessions that ended more than retention ago.
// A non-positive retention keeps everything.
func (st *Store) Sweep(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := st.clock().UTC().Add(-retention)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, e := range st.byID {
		e.mu.Lock()
		expired := e.s.Status.Terminal() && e.s.EndedAt != nil && e.s.EndedAt.Before(cutoff)
		carrierID := e.s.CarrierCallID
		e.mu.Unlock()
		if !expired {
			continue
		}
		delete(st.byID, id)
		if carrierID != "" {
			delete(st.byCarrier, carrierID)
		}
		removed++
	}
	return removed
}

// StartJanitor sweeps on interval until ctx is done.
func (st *Store) StartJanitor(ctx context.Context, interval, retention time.Duration, onSweep func(removed int)) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := st.Sweep(retention); n > 0 && onSweep != nil {
					onSweep(n)
				}
			}
		}
	}()
}

func (st *Store) entry(sessionID string) (*entry, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.byID[sessionID]
	return e, ok
}

func (st *Store) lookup(identifier string) (*entry, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id, ok := st.byCarrier[identifier]; ok {
		e, ok := st.byID[id]
		return e, ok
	}
	e, ok := st.byID[identifier]
	return e, ok
}

func (st *Store) fireTerminal(s Session) {
	st.hooksMu.RLock()
	hooks := make([]func(Session), len(st.onTerminal))
	copy(hooks, st.onTerminal)
	st.hooksMu.RUnlock()

	for _, h := range hooks {
		h(s.clone())
	}
}

func checkTransition(before, next Session) error {
	if next.ID != before.ID || next.To != before.To ||
		next.CarrierCallID != before.CarrierCallID || !next.StartedAt.Equal(before.StartedAt) {
		return ErrInvariant
	}
	if len(next.Transcript) < len(before.Transcript) {
		return ErrInvariant
	}
	for i := range before.Transcript {
		if next.Transcript[i] != before.Transcript[i] {
			return ErrInvariant
		}
	}

	if before.Status.Terminal() {
		if next.Status != before.Status || len(next.Transcript) != len(before.Transcript) {
			return ErrSessionClosed
		}
		return nil
	}
	if next.Status != before.Status && !before.Status.CanAdvanceTo(next.Status) {
		return ErrStaleStatus
	}
	return nil
}
