package calls

import (
	"strings"
	"time"
)

// Session tracks one outbound call across its webhook callbacks.
//
// Invariants:
// - ID and To never change.
// - CarrierCallID is bound at most once.
// - Transcript is append-only.
// - Status only moves forward; ended and failed are terminal.
type Session struct {
	ID            string `json:"session_id"`
	CarrierCallID string `json:"carrier_call_id,omitempty"`
	To            string `json:"to"`

	Status Status `json:"status"`
	// CarrierStatus is the last raw status string the carrier reported.
	CarrierStatus string `json:"carrier_status,omitempty"`

	Transcript []Turn `json:"transcript"`

	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Turn is one utterance in the conversation.
type Turn struct {
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusRinging:
		return 1
	case StatusActive:
		return 2
	case StatusEnded, StatusFailed:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether next is a legal forward transition from s.
// failed is reachable from every non-terminal status.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() > s.rank()
}

// MapCarrierStatus translates a Twilio CallStatus into a session status.
func MapCarrierStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "initiated":
		return StatusCreated, true
	case "ringing":
		return StatusRinging, true
	case "in-progress", "answered":
		return StatusActive, true
	case "completed":
		return StatusEnded, true
	case "busy", "no-answer", "canceled", "failed":
		return StatusFailed, true
	default:
		return "", false
	}
}

func (s Session) clone() Session {
	out := s
	out.Transcript = make([]Turn, len(s.Transcript))
	copy(out.Transcript, s.Transcript)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Turns returns the number of caller/assistant exchanges that completed.
func (s Session) Turns() int {
	n := 0
	for _, t := range s.Transcript {
		if t.Speaker == SpeakerAssistant {
			n++
		}
	}
	return n
}

// Duration is the time from creation to termination, or zero while live.
func (s Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
