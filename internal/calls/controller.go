package calls

import (
	"context"
	"errors"
	"strings"
	"time"

	"calling-center/internal/conversation"
	"calling-center/internal/observability"
	"calling-center/internal/telephony"
	"calling-center/pkg/logger"
)

// Caller-facing apologies spoken when reply generation fails.
const (
	ApologyQuota   = "I've reached my daily limit for responses. Please try again later or contact support for assistance."
	ApologyGeneric = "I'm having trouble processing your request. Please try again."
)

const (
	sayNoCallSID       = "Error: No call SID found"
	sayCallNotFound    = "Error: Call not found"
	sayNoTranscription = "Error: No transcription found"
)

// ReplyGenerator is the turn processor seen from the controller.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, prompt string) (string, error)
}

// Controller applies carrier callbacks to sessions.
type Controller struct {
	store     *Store
	replies   ReplyGenerator
	speechURL string
	metrics   *observability.Metrics
}

// NewController wires the controller. speechURL is the absolute URL every
// gather window posts back to. metrics may be nil.
func NewController(store *Store, replies ReplyGenerator, speechURL string, metrics *observability.Metrics) *Controller {
	return &Controller{
		store:     store,
		replies:   replies,
		speechURL: speechURL,
		metrics:   metrics,
	}
}

// HandleStatus applies a call progress callback.
//
// The returned error only explains why a callback was ignored; callers always
// acknowledge the carrier with an empty response.
func (c *Controller) HandleStatus(ctx context.Context, cb telephony.StatusCallback) error {
	log := logger.From(ctx).With("call_sid", cb.CallSid, "call_status", cb.CallStatus)

	if strings.TrimSpace(cb.CallSid) == "" {
		c.metrics.Callback("status", "malformed")
		log.Warn("status callback without call sid")
		return ErrMalformedCallback
	}

	sess, err := c.store.Resolve(cb.CallSid)
	if err != nil {
		c.metrics.Callback("status", "not_found")
		log.Warn("status callback for unknown call")
		return err
	}
	log = log.With("session_id", sess.ID)

	next, known := MapCarrierStatus(cb.CallStatus)
	updated, err := c.store.Mutate(sess.ID, func(s *Session) error {
		if s.Status.Terminal() {
			return ErrSessionClosed
		}
		if !known {
			return ErrUnknownStatus
		}
		if next != s.Status && !s.Status.CanAdvanceTo(next) {
			return ErrStaleStatus
		}
		s.Status = next
		s.CarrierStatus = cb.CallStatus
		return nil
	})
	switch {
	case err == nil:
		c.metrics.Callback("status", "applied")
		log.Info("call status updated", "status", updated.Status)
		return nil
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrStaleStatus):
		c.metrics.Callback("status", "ignored")
		log.Info("late status callback ignored", "status", updated.Status)
		return err
	case errors.Is(err, ErrUnknownStatus):
		c.metrics.Callback("status", "ignored")
		log.Warn("unrecognized carrier status")
		return err
	default:
		c.metrics.Callback("status", "error")
		log.Error("status callback failed", "err", err)
		return err
	}
}

// HandleSpeech runs one conversational turn and returns the markup for the
// carrier. A non-nil response is always returned.
//
// Errors: ErrMalformedCallback for a missing identifier or utterance,
// ErrNotFound for an unresolved identifier, ErrSessionClosed when the session
// already ended. Generation failures are answered with an apology and a nil error.
func (c *Controller) HandleSpeech(ctx context.Context, cb telephony.SpeechCallback) (*telephony.Response, error) {
	log := logger.From(ctx).With("call_sid", cb.CallSid)

	if strings.TrimSpace(cb.CallSid) == "" {
		c.metrics.Callback("speech", "malformed")
		log.Warn("speech callback without call sid")
		return telephony.NewResponse().Say(sayNoCallSID), ErrMalformedCallback
	}

	sess, err := c.store.Resolve(cb.CallSid)
	if err != nil {
		c.metrics.Callback("speech", "not_found")
		log.Warn("speech callback for unknown call")
		return telephony.NewResponse().Say(sayCallNotFound), ErrNotFound
	}
	log = log.With("session_id", sess.ID)

	text := cb.Text()
	if text == "" {
		c.metrics.Callback("speech", "malformed")
		log.Warn("speech callback without transcription")
		return telephony.NewResponse().Say(sayNoTranscription), ErrMalformedCallback
	}

	var resp *telephony.Response
	err = c.store.WithTurn(sess.ID, func() error {
		if err := c.appendTurn(sess.ID, SpeakerCaller, text); err != nil {
			return err
		}
		log.Info("caller turn recorded", "text", text)

		start := time.Now()
		reply, genErr := c.replies.GenerateReply(ctx, text)
		c.metrics.ObserveGeneration(time.Since(start))
		if genErr != nil {
			kind := conversation.KindOf(genErr)
			c.metrics.GenerationFailed(string(kind))
			log.Error("reply generation failed", "kind", kind, "err", genErr)
			resp = c.apology(kind)
			return nil
		}

		switch err := c.appendTurn(sess.ID, SpeakerAssistant, reply); {
		case errors.Is(err, ErrSessionClosed):
			log.Info("session ended during generation, reply not recorded")
		case err != nil:
			return err
		default:
			log.Info("assistant turn recorded", "text", reply)
		}
		resp = c.reply(reply)
		return nil
	})

	switch {
	case err == nil:
		c.metrics.Callback("speech", "applied")
		return resp, nil
	case errors.Is(err, ErrSessionClosed):
		c.metrics.Callback("speech", "ignored")
		log.Info("speech callback for ended call ignored")
		return telephony.NewResponse(), ErrSessionClosed
	case errors.Is(err, ErrNotFound):
		c.metrics.Callback("speech", "not_found")
		log.Warn("session evicted during turn")
		return telephony.NewResponse().Say(sayCallNotFound), ErrNotFound
	default:
		c.metrics.Callback("speech", "error")
		log.Error("speech callback failed", "err", err)
		return c.apology(conversation.KindGeneric), nil
	}
}

func (c *Controller) appendTurn(sessionID string, speaker Speaker, text string) error {
	_, err := c.store.Mutate(sessionID, func(s *Session) error {
		if s.Status.Terminal() {
			return ErrSessionClosed
		}
		s.Transcript = append(s.Transcript, Turn{
			Speaker:    speaker,
			Text:       text,
			RecordedAt: c.store.clock().UTC(),
		})
		return nil
	})
	if err == nil {
		c.metrics.Turn(string(speaker))
	}
	return err
}

func (c *Controller) reply(text string) *telephony.Response {
	return telephony.NewResponse().
		SayAs(telephony.VoiceMan, text).
		Pause(1).
		Say(telephony.PromptRespondNow).
		Gather(telephony.SpeechGather(c.speechURL))
}

func (c *Controller) apology(kind conversation.Kind) *telephony.Response {
	msg := ApologyGeneric
	if kind == conversation.KindQuotaExceeded {
		msg = ApologyQuota
	}
	return telephony.NewResponse().
		Say(msg).
		Gather(telephony.SpeechGather(c.speechURL))
}
