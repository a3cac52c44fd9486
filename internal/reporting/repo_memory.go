package reporting

import (
	"context"
	"errors"
	"time"

	"calling-center/internal/calls"
)

// StoreRepo reads sessions straight from the in-memory session store.
// Evicted sessions are no longer visible to it.
type StoreRepo struct {
	store *calls.Store
}

func NewStoreRepo(store *calls.Store) *StoreRepo { return &StoreRepo{store: store} }

// ListSessions returns sessions started in [from, to).
func (r *StoreRepo) ListSessions(ctx context.Context, from, to time.Time) ([]calls.Session, error) {
	if r.store == nil {
		return nil, errors.New("reporting: store not configured")
	}
	out := make([]calls.Session, 0)
	for _, s := range r.store.List() {
		if s.StartedAt.Before(from) || !s.StartedAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
