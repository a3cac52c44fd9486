package telephony

import (
	"net/http"
	"strings"
)

// Twilio posts application/x-www-form-urlencoded callbacks.
// Ref: https://www.twilio.com/docs/voice/twiml/gather#action
//
// Only the fields the session state machine reads are captured here.

// StatusCallback is a call progress notification.
type StatusCallback struct {
	CallSid    string
	CallStatus string
	AccountSid string
	// CallDuration is reported on completed calls, in seconds.
	CallDuration string
}

// SpeechCallback is the Gather action request carrying recognized speech.
type SpeechCallback struct {
	CallSid           string
	AccountSid        string
	SpeechResult      string
	TranscriptionText string
	Confidence        string
}

// Text returns the recognized utterance, preferring a finalized transcription.
func (s SpeechCallback) Text() string {
	if t := strings.TrimSpace(s.TranscriptionText); t != "" {
		return t
	}
	return strings.TrimSpace(s.SpeechResult)
}

func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	return StatusCallback{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus:   strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		AccountSid:   strings.TrimSpace(r.PostFormValue("AccountSid")),
		CallDuration: strings.TrimSpace(r.PostFormValue("CallDuration")),
	}, nil
}

// ParseSpeechCallback reads the Gather action form.
// CallSid falls back to the query string so an action URL can carry the identifier itself.
func ParseSpeechCallback(r *http.Request) (SpeechCallback, error) {
	if err := r.ParseForm(); err != nil {
		return SpeechCallback{}, err
	}
	sid := strings.TrimSpace(r.PostFormValue("CallSid"))
	if sid == "" {
		sid = strings.TrimSpace(r.URL.Query().Get("CallSid"))
	}
	return SpeechCallback{
		CallSid:           sid,
		AccountSid:        strings.TrimSpace(r.PostFormValue("AccountSid")),
		SpeechResult:      r.PostFormValue("SpeechResult"),
		TranscriptionText: r.PostFormValue("TranscriptionText"),
		Confidence:        r.PostFormValue("Confidence"),
	}, nil
}
