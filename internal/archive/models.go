package archive

import (
	"time"

	"calling-center/internal/calls"
)

// Record is an immutable copy of a call session taken when it terminated.
//
// Invariants:
// - Records are never updated or deleted.
// - At most one record exists per session id.
//
// Storage (Postgres): table call_archive, INSERT-only, unique on session_id.
type Record struct {
	ID            string `json:"id" db:"id"`
	SessionID     string `json:"session_id" db:"session_id"`
	CarrierCallID string `json:"carrier_call_id,omitempty" db:"carrier_call_id"`
	To            string `json:"to" db:"to_number"`

	// Status is ended or failed.
	Status        calls.Status `json:"status" db:"status"`
	CarrierStatus string       `json:"carrier_status,omitempty" db:"carrier_status"`

	// Transcript is stored as jsonb.
	Transcript []calls.Turn `json:"transcript" db:"transcript"`

	StartedAt  time.Time `json:"started_at" db:"started_at"`
	EndedAt    time.Time `json:"ended_at" db:"ended_at"`
	ArchivedAt time.Time `json:"archived_at" db:"archived_at"`
}

// FromSession snapshots a terminated session.
func FromSession(s calls.Session) Record {
	r := Record{
		SessionID:     s.ID,
		CarrierCallID: s.CarrierCallID,
		To:            s.To,
		Status:        s.Status,
		CarrierStatus: s.CarrierStatus,
		Transcript:    append([]calls.Turn(nil), s.Transcript...),
		StartedAt:     s.StartedAt,
	}
	if s.EndedAt != nil {
		r.EndedAt = *s.EndedAt
	}
	return r
}

func (r Record) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
