package archive

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository.
// It is used when no database is configured and in tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
	seen    map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{seen: make(map[string]struct{})}
}

func (r *MemoryRepo) Append(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[rec.SessionID]; dup {
		return nil
	}
	r.seen[rec.SessionID] = struct{}{}
	r.records = append(r.records, rec)
	return nil
}

// List returns up to limit records, most recently archived first.
func (r *MemoryRepo) List(ctx context.Context, limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(r.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}
