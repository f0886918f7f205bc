package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// userIDKey is the Gin context key holding the authenticated user ID.
	userIDKey = "userID"
	// UserIDHeader carries the caller's identity, set by the upstream
	// authenticator in front of this service.
	UserIDHeader = "X-User-ID"
)

// Identity reads the caller's user ID from X-User-ID and stores it under
// "userID". Requests without it are rejected with 401 in the standard error
// envelope. The request-scoped logger is enriched with the ID.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if uid == "" {
			rid, _ := c.Get(requestIDKey)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": asString(rid),
				"code":       "unauthorized",
				"message":    "missing " + UserIDHeader + " header",
			})
			return
		}
		c.Set(userIDKey, uid)
		l := LoggerFrom(c).With().Str("user_id", uid).Logger()
		c.Set(loggerKey, &l)
		c.Next()
	}
}

// UserID returns the identity stored by Identity, or "" when absent.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
