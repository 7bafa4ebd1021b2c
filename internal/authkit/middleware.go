package authkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionIDContextKey = "session_id"

// RequireSessionHeader rejects requests without a session header and stores its value in the context.
func RequireSessionHeader(configuration ServerConfig) gin.HandlerFunc {
	headerName := configuration.SessionHeader()
	return func(contextGin *gin.Context) {
		sessionID := strings.TrimSpace(contextGin.GetHeader(headerName))
		if sessionID == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_session"})
			return
		}
		contextGin.Set(sessionIDContextKey, sessionID)
		contextGin.Next()
	}
}

// SessionIDFromContext returns the session id set by RequireSessionHeader.
func SessionIDFromContext(contextGin *gin.Context) string {
	return contextGin.GetString(sessionIDContextKey)
}
