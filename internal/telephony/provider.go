package telephony

import (
	"context"
	"errors"
)

// CallPlacer places outbound calls at a carrier.
//
// Rules:
// - No carrier SDK calls outside telephony adapters.
// - Request/response types stay carrier-agnostic.
type CallPlacer interface {
	Name() string
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

// PlaceCallRequest asks the carrier to dial To and execute TwiML once answered.
type PlaceCallRequest struct {
	// To and From are E.164 numbers.
	To   string `json:"to"`
	From string `json:"from,omitempty"`

	// TwiML is executed when the callee answers.
	TwiML string `json:"twiml"`

	// StatusCallbackURL receives call progress events.
	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

// PlaceCallResult carries the carrier-assigned call identifier.
type PlaceCallResult struct {
	CarrierCallID string `json:"carrier_call_id"`
	// Status is the carrier's initial status string (e.g. "queued").
	Status string `json:"status,omitempty"`
}

var ErrInvalidPlaceRequest = errors.New("telephony: invalid place call request")

func (r PlaceCallRequest) validate() error {
	if r.To == "" || r.From == "" || r.TwiML == "" {
		return ErrInvalidPlaceRequest
	}
	return nil
}
