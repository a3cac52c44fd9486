package calls

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("calls: session not found")
	ErrMalformedCallback = errors.New("calls: malformed callback")
	ErrSessionClosed     = errors.New("calls: session is terminal")
	ErrStaleStatus       = errors.New("calls: stale status transition")
	ErrUnknownStatus     = errors.New("calls: unknown carrier status")

	ErrCarrierIDConflict  = errors.New("calls: carrier call id bound to another session")
	ErrInvariant          = errors.New("calls: session invariant violated")
	ErrInvalidDestination = errors.New("calls: invalid destination number")
	ErrCapacityExceeded   = errors.New("calls: concurrent call limit reached")
)

// PlacementError reports that the carrier refused to place a call.
// The session identified by SessionID has been marked failed.
type PlacementError struct {
	SessionID string
	Err       error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("calls: placement failed for session %s: %v", e.SessionID, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }
