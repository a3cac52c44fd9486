package calls

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"calling-center/internal/observability"
	"calling-center/internal/telephony"
	"calling-center/pkg/logger"
)

var e164 = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// StartResult identifies a placed call.
type StartResult struct {
	SessionID     string `json:"sessionId"`
	CarrierCallID string `json:"carrierCallId"`
	Status        Status `json:"status"`
}

type InitiatorConfig struct {
	Greeting  Greeting
	SpeechURL string
	StatusURL string

	// Limiter is optional.
	Limiter Limiter
	Metrics *observability.Metrics
}

// Initiator creates sessions and asks the carrier to place the call.
type Initiator struct {
	store   *Store
	placer  telephony.CallPlacer
	cfg     InitiatorConfig
	limiter Limiter
	metrics *observability.Metrics
}

// NewInitiator registers a termination hook on store that returns the call's
// limiter slot and updates the live session gauge.
func NewInitiator(store *Store, placer telephony.CallPlacer, cfg InitiatorConfig) *Initiator {
	in := &Initiator{
		store:   store,
		placer:  placer,
		cfg:     cfg,
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
	}
	store.OnTerminal(in.release)
	return in
}

// NormalizeNumber strips the punctuation people type into phone numbers.
func NormalizeNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// StartCall places an outbound call to the destination number.
//
// On placement failure the session is left in status failed and a
// *PlacementError carrying its id is returned.
func (in *Initiator) StartCall(ctx context.Context, to string) (StartResult, error) {
	to = NormalizeNumber(to)
	if !e164.MatchString(to) {
		return StartResult{}, ErrInvalidDestination
	}

	if in.limiter != nil {
		ok, err := in.limiter.Acquire(ctx)
		if err != nil {
			return StartResult{}, fmt.Errorf("calls: acquire call slot: %w", err)
		}
		if !ok {
			return StartResult{}, ErrCapacityExceeded
		}
	}

	sess := in.store.Create(to)
	in.metrics.SessionStarted()
	log := logger.From(ctx).With("session_id", sess.ID, "to", to)
	log.Info("call session created")

	twiml, err := in.cfg.Greeting.Script(in.store.clock(), in.cfg.SpeechURL).Render()
	if err != nil {
		return StartResult{}, in.fail(log, sess.ID, err)
	}

	res, err := in.placer.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:                to,
		TwiML:             twiml,
		StatusCallbackURL: in.cfg.StatusURL,
	})
	if err != nil {
		return StartResult{}, in.fail(log, sess.ID, err)
	}
	log = log.With("call_sid", res.CarrierCallID)

	if err := in.store.BindCarrierID(sess.ID, res.CarrierCallID); err != nil {
		return StartResult{}, in.fail(log, sess.ID, err)
	}

	// A status callback may already have moved the call past ringing.
	updated, err := in.store.Mutate(sess.ID, func(s *Session) error {
		if s.Status.CanAdvanceTo(StatusRinging) {
			s.Status = StatusRinging
			s.CarrierStatus = res.Status
		}
		return nil
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("calls: advance session %s: %w", sess.ID, err)
	}

	log.Info("call placed", "placer", in.placer.Name(), "status", updated.Status)
	return StartResult{
		SessionID:     updated.ID,
		CarrierCallID: updated.CarrierCallID,
		Status:        updated.Status,
	}, nil
}

func (in *Initiator) fail(log *slog.Logger, sessionID string, cause error) error {
	in.metrics.PlacementFailed()
	log.Error("call placement failed", "err", cause)
	if _, err := in.store.Mutate(sessionID, func(s *Session) error {
		s.Status = StatusFailed
		return nil
	}); err != nil {
		log.Error("mark session failed", "err", err)
	}
	return &PlacementError{SessionID: sessionID, Err: cause}
}

func (in *Initiator) release(s Session) {
	in.metrics.SessionTerminated()
	if in.limiter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := in.limiter.Release(ctx); err != nil {
		slog.Default().Error("release call slot", "session_id", s.ID, "err", err)
	}
}
