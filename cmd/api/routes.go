package main

import (
	"net/http"

	"calling-center/internal/httpapi"
	"calling-center/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	Handlers httpapi.Handlers
	// AuthMW is nil when auth is disabled.
	AuthMW     gin.HandlerFunc
	CORSOrigin string
	Metrics    http.Handler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.Handlers

	// public
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Ready)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// Carrier webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	r.POST("/api/call/status", h.CallStatus)
	r.POST("/api/call/speech", h.CallSpeech)

	// operator API
	api := r.Group("/api", httpapi.CORS(d.CORSOrigin))
	{
		// Preflight is answered by the CORS middleware before auth runs.
		api.OPTIONS("/*path", func(c *gin.Context) {})

		start := httpapi.RequireAuthAndAnyRole(d.AuthMW, rbac.RoleOperator)
		api.POST("/call/start", append(start, h.StartCall)...)

		callsGroup := api.Group("/calls")
		callsGroup.Use(httpapi.RequireAuthAndAnyRole(d.AuthMW, rbac.RoleOperator, rbac.RoleViewer)...)
		{
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/summary", h.CallsSummary)
			callsGroup.GET("/engagement", h.CallsEngagement)
			callsGroup.GET("/archive", h.ListArchive)
			callsGroup.GET("/:id", h.GetCall)
		}
	}
}
