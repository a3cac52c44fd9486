package httpapi

import (
	"errors"
	"net/http"

	"calling-center/internal/calls"
	"calling-center/internal/telephony"
	"calling-center/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Carrier webhooks. Twilio expects TwiML back on every request; failures are
// spoken inside the markup and only malformed or unknown calls change the HTTP status.

// CallStatus always acknowledges with an empty response.
func (h Handlers) CallStatus(c *gin.Context) {
	log := logger.FromGin(c)

	cb, err := telephony.ParseStatusCallback(c.Request)
	switch {
	case err != nil:
		log.Warn("unparseable status callback", "err", err)
	case h.Controller == nil:
		log.Error("status callback received but controller not configured")
	default:
		// The controller logs why a callback was ignored.
		_ = h.Controller.HandleStatus(c.Request.Context(), cb)
	}
	writeTwiML(c, http.StatusOK, telephony.NewResponse())
}

// CallSpeech runs one conversational turn.
func (h Handlers) CallSpeech(c *gin.Context) {
	log := logger.FromGin(c)

	cb, err := telephony.ParseSpeechCallback(c.Request)
	if err != nil {
		log.Warn("unparseable speech callback", "err", err)
		writeTwiML(c, http.StatusBadRequest, telephony.NewResponse().Say("Error: No call SID found"))
		return
	}
	if h.Controller == nil {
		log.Error("speech callback received but controller not configured")
		writeTwiML(c, http.StatusOK, telephony.NewResponse().Say(calls.ApologyGeneric))
		return
	}

	resp, err := h.Controller.HandleSpeech(c.Request.Context(), cb)
	status := http.StatusOK
	switch {
	case errors.Is(err, calls.ErrMalformedCallback):
		status = http.StatusBadRequest
	case errors.Is(err, calls.ErrNotFound):
		status = http.StatusNotFound
	}
	writeTwiML(c, status, resp)
}

func writeTwiML(c *gin.Context, status int, r *telephony.Response) {
	body, err := r.Render()
	if err != nil {
		logger.FromGin(c).Error("render twiml", "err", err)
		body = telephony.EmptyResponse()
	}
	c.Data(status, "text/xml", []byte(body))
}
