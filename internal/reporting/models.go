package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates sessions started inside Range.
type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls  int `json:"total_calls"`
	LiveCalls   int `json:"live_calls"`
	EndedCalls  int `json:"ended_calls"`
	FailedCalls int `json:"failed_calls"`

	// FailureReasons counts failed sessions by the carrier status that ended them
	// (busy, no-answer, canceled, failed). Placement failures have no carrier status.
	FailureReasons map[string]int `json:"failure_reasons"`

	TotalTurns   int     `json:"total_turns"`
	AverageTurns float64 `json:"average_turns"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

// EngagementMetrics measures how many placed calls turned into conversations.
type EngagementMetrics struct {
	Range TimeRange `json:"range"`

	CallsAttempted int `json:"calls_attempted"`
	// CallsConnected completed normally.
	CallsConnected int `json:"calls_connected"`
	// Conversations had at least one assistant reply.
	Conversations int `json:"conversations"`

	ConnectionRate float64 `json:"connection_rate"`
	EngagementRate float64 `json:"engagement_rate"`
}
