package calls

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"calling-center/internal/observability"
	"calling-center/internal/telephony"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testStatusURL = "https://calls.example.test/api/call/status"

type fakePlacer struct {
	mu     sync.Mutex
	result telephony.PlaceCallResult
	err    error
	reqs   []telephony.PlaceCallRequest
	// onPlace runs before the result is returned.
	onPlace func()
}

func (f *fakePlacer) Name() string { return "fake" }

func (f *fakePlacer) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.onPlace != nil {
		f.onPlace()
	}
	return f.result, f.err
}

type fakeLimiter struct {
	mu       sync.Mutex
	limit    int
	inUse    int
	released int
	err      error
}

func (l *fakeLimiter) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.inUse >= l.limit {
		return false, nil
	}
	l.inUse++
	return true, nil
}

func (l *fakeLimiter) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inUse--
	l.released++
	return nil
}

func testInitiatorConfig() InitiatorConfig {
	return InitiatorConfig{
		Greeting:  Greeting{AgentName: "Ava", CompanyName: "Acme"},
		SpeechURL: testSpeechURL,
		StatusURL: testStatusURL,
	}
}

func TestStartCallPlacesAndBinds(t *testing.T) {
	st := newTestStore(newFakeClock())
	placer := &fakePlacer{result: telephony.PlaceCallResult{CarrierCallID: "CA123", Status: "queued"}}

	var beforePlacement Session
	placer.onPlace = func() {
		list := st.List()
		if len(list) == 1 {
			beforePlacement = list[0]
		}
	}

	m := observability.NewMetrics("test")
	cfg := testInitiatorConfig()
	cfg.Metrics = m
	in := NewInitiator(st, placer, cfg)

	res, err := in.StartCall(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if beforePlacement.Status != StatusCreated || beforePlacement.CarrierCallID != "" {
		t.Fatalf("session before placement = %+v", beforePlacement)
	}
	if res.CarrierCallID != "CA123" || res.Status != StatusRinging || res.SessionID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	got, err := st.Resolve("CA123")
	if err != nil || got.ID != res.SessionID || got.Status != StatusRinging || got.To != "+15551234567" {
		t.Fatalf("resolved session = %+v, %v", got, err)
	}

	if len(placer.reqs) != 1 {
		t.Fatalf("expected one placement, got %d", len(placer.reqs))
	}
	req := placer.reqs[0]
	if req.To != "+15551234567" || req.StatusCallbackURL != testStatusURL {
		t.Fatalf("unexpected placement request %+v", req)
	}
	for _, want := range []string{
		"this is Ava calling from Acme.",
		`<Pause length="2"></Pause>`,
		`action="` + testSpeechURL + `"`,
	} {
		if !strings.Contains(req.TwiML, want) {
			t.Fatalf("expected %q in greeting:\n%s", want, req.TwiML)
		}
	}
	if v := testutil.ToFloat64(m.ActiveSessions); v != 1 {
		t.Fatalf("active sessions gauge = %v", v)
	}
}

func TestStartCallPlacementFailure(t *testing.T) {
	st := newTestStore(newFakeClock())
	carrierErr := errors.New("carrier rejected number")
	limiter := &fakeLimiter{limit: 1}
	cfg := testInitiatorConfig()
	cfg.Limiter = limiter
	cfg.Metrics = observability.NewMetrics("test")
	in := NewInitiator(st, &fakePlacer{err: carrierErr}, cfg)

	_, err := in.StartCall(context.Background(), "+15551234567")
	var pe *PlacementError
	if !errors.As(err, &pe) || !errors.Is(err, carrierErr) {
		t.Fatalf("expected PlacementError wrapping carrier error, got %v", err)
	}

	s, err := st.Get(pe.SessionID)
	if err != nil {
		t.Fatalf("failed session must remain visible: %v", err)
	}
	if s.Status != StatusFailed || s.EndedAt == nil || s.CarrierCallID != "" {
		t.Fatalf("session = %+v", s)
	}
	if limiter.inUse != 0 || limiter.released != 1 {
		t.Fatalf("slot not released: %+v", limiter)
	}
	if v := testutil.ToFloat64(cfg.Metrics.PlacementFailures); v != 1 {
		t.Fatalf("placement failures = %v", v)
	}
	if v := testutil.ToFloat64(cfg.Metrics.ActiveSessions); v != 0 {
		t.Fatalf("active sessions gauge = %v", v)
	}
}

func TestStartCallRejectsInvalidDestination(t *testing.T) {
	st := newTestStore(newFakeClock())
	placer := &fakePlacer{}
	in := NewInitiator(st, placer, testInitiatorConfig())

	for _, to := range []string{"", "abc", "+0123", "12"} {
		if _, err := in.StartCall(context.Background(), to); !errors.Is(err, ErrInvalidDestination) {
			t.Fatalf("%q: expected ErrInvalidDestination, got %v", to, err)
		}
	}
	if st.Len() != 0 || len(placer.reqs) != 0 {
		t.Fatalf("invalid numbers must not create sessions")
	}
}

func TestStartCallNormalizesNumber(t *testing.T) {
	st := newTestStore(newFakeClock())
	placer := &fakePlacer{result: telephony.PlaceCallResult{CarrierCallID: "CA1"}}
	in := NewInitiator(st, placer, testInitiatorConfig())

	if _, err := in.StartCall(context.Background(), "+1 (555) 123-4567"); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if placer.reqs[0].To != "+15551234567" {
		t.Fatalf("To = %q", placer.reqs[0].To)
	}
}

func TestStartCallCapacity(t *testing.T) {
	st := newTestStore(newFakeClock())
	limiter := &fakeLimiter{limit: 1}
	cfg := testInitiatorConfig()
	cfg.Limiter = limiter
	placer := &fakePlacer{result: telephony.PlaceCallResult{CarrierCallID: "CA1"}}
	in := NewInitiator(st, placer, cfg)
	ctrl := NewController(st, replyWith("unused"), testSpeechURL, nil)

	if _, err := in.StartCall(context.Background(), "+15551234567"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := in.StartCall(context.Background(), "+15557654321"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if st.Len() != 1 {
		t.Fatalf("refused call created a session")
	}

	if err := ctrl.HandleStatus(context.Background(), telephony.StatusCallback{CallSid: "CA1", CallStatus: "completed"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	placer.result.CarrierCallID = "CA2"
	if _, err := in.StartCall(context.Background(), "+15557654321"); err != nil {
		t.Fatalf("slot not returned after completion: %v", err)
	}
}

func TestStartCallLimiterError(t *testing.T) {
	st := newTestStore(newFakeClock())
	cfg := testInitiatorConfig()
	cfg.Limiter = &fakeLimiter{err: errors.New("redis down")}
	in := NewInitiator(st, &fakePlacer{}, cfg)

	_, err := in.StartCall(context.Background(), "+15551234567")
	if err == nil || errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected limiter error, got %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("no session expected")
	}
}

func TestStartCallKeepsStatusAdvancedByEarlyCallback(t *testing.T) {
	st := newTestStore(newFakeClock())
	placer := &fakePlacer{result: telephony.PlaceCallResult{CarrierCallID: "CA1"}}
	placer.onPlace = func() {
		// The carrier answered before placement returned; the callback used the session id.
		s := st.List()[0]
		if _, err := st.Mutate(s.ID, func(s *Session) error { s.Status = StatusActive; return nil }); err != nil {
			t.Errorf("mutate: %v", err)
		}
	}
	in := NewInitiator(st, placer, testInitiatorConfig())

	res, err := in.StartCall(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if res.Status != StatusActive {
		t.Fatalf("status regressed to %s", res.Status)
	}
}

func TestGreetingPartOfDay(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC) }
	cases := map[int]string{4: "evening", 5: "morning", 11: "morning", 12: "afternoon", 17: "afternoon", 18: "evening", 23: "evening"}
	for h, want := range cases {
		if got := PartOfDay(at(h)); got != want {
			t.Fatalf("PartOfDay(%d) = %q, want %q", h, got, want)
		}
	}
}

func TestGreetingDefaults(t *testing.T) {
	text := Greeting{}.Text(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(text, "Good morning, this is AI Assistant calling from Our Company.") {
		t.Fatalf("unexpected greeting %q", text)
	}
}
