package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"calling-center/internal/archive"
	"calling-center/internal/calls"
	"calling-center/internal/reporting"
	"calling-center/internal/telephony"
	"calling-center/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallStarter places outbound calls.
type CallStarter interface {
	StartCall(ctx context.Context, to string) (calls.StartResult, error)
}

// CallbackController applies carrier webhooks to sessions.
type CallbackController interface {
	HandleStatus(ctx context.Context, cb telephony.StatusCallback) error
	HandleSpeech(ctx context.Context, cb telephony.SpeechCallback) (*telephony.Response, error)
}

// SessionReader is the read side of the session store.
type SessionReader interface {
	List() []calls.Session
	Resolve(identifier string) (calls.Session, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON or TwiML.
type Handlers struct {
	Initiator  CallStarter
	Controller CallbackController
	Sessions   SessionReader
	Reports    *reporting.Service
	Archive    *archive.Service

	// Checks are run by Ready; each key names a dependency.
	Checks map[string]func(ctx context.Context) error
}

// --- Operator API ---

type startCallRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// StartCall places a call and returns the identifiers the browser UI polls with.
func (h Handlers) StartCall(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Initiator == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "calls not configured"})
		return
	}

	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "phoneNumber required"})
		return
	}

	res, err := h.Initiator.StartCall(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		var pe *calls.PlacementError
		switch {
		case errors.Is(err, calls.ErrInvalidDestination):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid phoneNumber"})
		case errors.Is(err, calls.ErrCapacityExceeded):
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "too many active calls"})
		case errors.As(err, &pe):
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"success": false, "error": "Failed to start call", "sessionId": pe.SessionID})
		default:
			log.Error("start call failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to start call"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"callId":        res.SessionID,
		"sessionId":     res.SessionID,
		"twilioCallSid": res.CarrierCallID,
		"status":        res.Status,
	})
}

// ListCalls returns session snapshots, newest first.
// Query: status (optional), limit (default 50, max 500).
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	limit, ok := queryLimit(c, 50, 500)
	if !ok {
		return
	}
	status := calls.Status(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	out := make([]calls.Session, 0, limit)
	for _, s := range h.Sessions.List() {
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"calls": out, "count": len(out)})
}

// GetCall accepts either the session id or the carrier call id.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	s, err := h.Sessions.Resolve(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// CallsSummary aggregates sessions started in [from, to). Both are RFC3339;
// the default window is the last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	r, ok := queryRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), r)
	if err != nil {
		writeReportError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CallsEngagement(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	r, ok := queryRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.EngagementMetrics(c.Request.Context(), r)
	if err != nil {
		writeReportError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListArchive returns archived transcripts of terminated calls.
func (h Handlers) ListArchive(c *gin.Context) {
	if h.Archive == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "archive not enabled"})
		return
	}
	limit, ok := queryLimit(c, 100, 1000)
	if !ok {
		return
	}
	recs, err := h.Archive.List(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("archive list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "archive lookup failed"})
		return
	}
	if recs == nil {
		recs = []archive.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready runs every dependency check with a short timeout.
func (h Handlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "dependency", name, "err", err)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "dependencies": deps})
}

func queryLimit(c *gin.Context, def, max int) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func queryRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := time.Now().UTC()
	r := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now}
	for key, dst := range map[string]*time.Time{"from": &r.From, "to": &r.To} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		*dst = t
	}
	return r, true
}

func writeReportError(c *gin.Context, err error) {
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
		return
	}
	logger.FromGin(c).Error("report failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
}
