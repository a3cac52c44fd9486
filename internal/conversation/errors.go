package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure. Callers hear a different apology per kind.
type Kind string

const (
	KindQuotaExceeded Kind = "quota_exceeded"
	KindGeneric       Kind = "generic"
)

// UpstreamError is returned for every failure of the generation service.
type UpstreamError struct {
	Kind Kind
	// StatusCode is the upstream HTTP status when one was received.
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("conversation: upstream %s (http %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("conversation: upstream %s: %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err; anything that is not an UpstreamError is generic.
func KindOf(err error) Kind {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Kind != "" {
		return ue.Kind
	}
	return KindGeneric
}

func IsQuotaExceeded(err error) bool {
	return err != nil && KindOf(err) == KindQuotaExceeded
}

func generic(err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Kind: KindGeneric, Err: err}
}
