// README: Firebase ID-token auth middleware and driver ownership check.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"courier/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"

	RoleDriver = "driver"
)

// Auth verifies the bearer token and stores the caller's uid and role claim
// on the context. Requests without a valid token stop here with 401.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxRole, role)
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// RequireDriver lets through callers holding the driver role. When param is
// set, the caller's uid must also match that path parameter.
func RequireDriver(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != RoleDriver {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "driver role required"})
			return
		}
		if param != "" && c.Param(param) != CallerUID(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not your resource"})
			return
		}
		c.Next()
	}
}
