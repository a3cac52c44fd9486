package logger

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Middleware(l, "/health"))
	r.GET("/x", func(c *gin.Context) {
		if From(c.Request.Context()) == slog.Default() {
			t.Errorf("expected request logger in context")
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected %s header", headerRequestID)
	}
	if !strings.Contains(buf.String(), `"path":"/x"`) {
		t.Fatalf("expected request summary, got %s", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "rid-1")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("expected inbound request id to be echoed, got %q", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected /health to be skipped, got %s", buf.String())
	}
}
