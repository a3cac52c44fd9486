package httpapi

import (
	"net/http"

	"calling-center/internal/rbac"

	"github.com/gin-gonic/gin"
)

// CORS lets the browser UI call the operator API from another origin.
// Preflight requests are answered here and never reach auth.
func CORS(allowOrigin string) gin.HandlerFunc {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		h.Set("Access-Control-Expose-Headers", "X-Request-Id")
		if allowOrigin != "*" {
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Convenience middleware bundles.

// RequireAuthAndAnyRole returns nothing when authMW is nil, leaving the route open.
func RequireAuthAndAnyRole(authMW gin.HandlerFunc, roles ...string) []gin.HandlerFunc {
	if authMW == nil {
		return nil
	}
	return []gin.HandlerFunc{authMW, rbac.RequireAnyRole(roles...)}
}
