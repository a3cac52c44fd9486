package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// statusEvents are the call progress events the status callback subscribes to.
var statusEvents = []string{"initiated", "ringing", "answered", "completed"}

// TwilioPlacer places calls through the Twilio REST API.
type TwilioPlacer struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioPlacer(accountSID, authToken, from string) (*TwilioPlacer, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: twilio credentials required")
	}
	if from == "" {
		return nil, errors.New("telephony: twilio caller number required")
	}
	return &TwilioPlacer{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
	}, nil
}

func (p *TwilioPlacer) Name() string { return "twilio" }

func (p *TwilioPlacer) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.From == "" {
		req.From = p.from
	}
	if err := req.validate(); err != nil {
		return PlaceCallResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return PlaceCallResult{}, err
	}

	params := &twapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetTwiml(req.TwiML)
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent(statusEvents)
	}

	call, err := p.client.Api.CreateCall(params)
	if err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			return PlaceCallResult{}, fmt.Errorf("twilio create call: code %d (http %d): %s: %w", restErr.Code, restErr.Status, restErr.Message, err)
		}
		return PlaceCallResult{}, fmt.Errorf("twilio create call: %w", err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return PlaceCallResult{}, errors.New("twilio create call: response missing sid")
	}

	out := PlaceCallResult{CarrierCallID: *call.Sid}
	if call.Status != nil {
		out.Status = *call.Status
	}
	return out, nil
}
