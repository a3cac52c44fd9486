package archive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"calling-center/internal/calls"
)

// Repository is the persistence contract for archived sessions.
//
// It MUST be append-only, and Append MUST be idempotent per session id.
type Repository interface {
	Append(ctx context.Context, r Record) error
	List(ctx context.Context, limit int) ([]Record, error)
}

// Service archives terminated sessions.
//
// Archiving is best-effort: a failed write is logged and never blocks a callback.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidRecord = errors.New("archive: invalid record")

const defaultListLimit = 100

func (s *Service) Append(ctx context.Context, r Record) error {
	if s.repo == nil {
		return errors.New("archive: repository not configured")
	}
	if r.SessionID == "" || !r.Status.Terminal() {
		return ErrInvalidRecord
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ArchivedAt.IsZero() {
		r.ArchivedAt = s.clock().UTC()
	}
	if r.Transcript == nil {
		r.Transcript = []calls.Turn{}
	}
	return s.repo.Append(ctx, r)
}

// ArchiveSession stores a snapshot of a terminated session.
func (s *Service) ArchiveSession(ctx context.Context, sess calls.Session) error {
	return s.Append(ctx, FromSession(sess))
}

func (s *Service) List(ctx context.Context, limit int) ([]Record, error) {
	if s.repo == nil {
		return nil, errors.New("archive: repository not configured")
	}
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	return s.repo.List(ctx, limit)
}

// Hook adapts the service to calls.Store.OnTerminal.
func (s *Service) Hook(log *slog.Logger, timeout time.Duration) func(calls.Session) {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(sess calls.Session) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.ArchiveSession(ctx, sess); err != nil {
			log.Error("archive session", "session_id", sess.ID, "err", err)
			return
		}
		log.Debug("session archived", "session_id", sess.ID, "status", sess.Status)
	}
}
