package reporting

import (
	"context"
	"errors"
	"time"

	"calling-center/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
type Repository interface {
	ListSessions(ctx context.Context, from, to time.Time) ([]calls.Session, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	if !validRange(r) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListSessions(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r, FailureReasons: map[string]int{}}
	finished := 0
	for _, c := range rows {
		out.TotalCalls++
		out.TotalTurns += c.Turns()
		switch c.Status {
		case calls.StatusEnded:
			out.EndedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
			reason := c.CarrierStatus
			if reason == "" {
				reason = "placement"
			}
			out.FailureReasons[reason]++
		default:
			out.LiveCalls++
		}
		if c.Status.Terminal() {
			finished++
			out.TotalDurationSeconds += int(c.Duration().Seconds())
		}
	}
	if out.TotalCalls > 0 {
		out.AverageTurns = float64(out.TotalTurns) / float64(out.TotalCalls)
	}
	if finished > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / finished
	}
	return out, nil
}

func (s *Service) EngagementMetrics(ctx context.Context, r TimeRange) (EngagementMetrics, error) {
	if !validRange(r) {
		return EngagementMetrics{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return EngagementMetrics{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListSessions(ctx, r.From, r.To)
	if err != nil {
		return EngagementMetrics{}, err
	}

	out := EngagementMetrics{Range: r, CallsAttempted: len(rows)}
	for _, c := range rows {
		if c.Status == calls.StatusEnded {
			out.CallsConnected++
		}
		if c.Turns() > 0 {
			out.Conversations++
		}
	}
	if out.CallsAttempted > 0 {
		out.ConnectionRate = float64(out.CallsConnected) / float64(out.CallsAttempted)
		out.EngagementRate = float64(out.Conversations) / float64(out.CallsAttempted)
	}
	return out, nil
}
