package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nayasahai/recovery/internal/cases"
)

const (
	userIDKey = "user_id"
	planKey   = "plan"

	// DevelopmentUserID owns every request when authentication is disabled
	DevelopmentUserID = "local-dev"
)

var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Middleware authenticates bearer tokens and stores the caller on the
// gin context
func Middleware(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if publicPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if !s.Enabled() {
			c.Set(userIDKey, DevelopmentUserID)
			c.Set(planKey, string(cases.PlanToolkit))
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" && websocket.IsWebSocketUpgrade(c.Request) {
			// browsers cannot set headers on websocket handshakes
			if token := c.Query("access_token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		sess := claims.Session()
		c.Set(userIDKey, sess.OwnerID)
		c.Set(planKey, string(sess.Plan))
		c.Next()
	}
}

// SessionFromContext returns the caller set by Middleware. The session is
// empty when no caller was authenticated.
func SessionFromContext(c *gin.Context) cases.Session {
	return cases.Session{
		OwnerID: c.GetString(userIDKey),
		Plan:    cases.Plan(c.GetString(planKey)),
	}
}
