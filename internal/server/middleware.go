package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"streamscribe/internal/logger"
	"streamscribe/internal/types"
)

const userKey = "streamscribe.user"

// requestLogger logs every request with its id, method, path, status,
// and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.New().WithRequest(c.Request).
			WithField("status", c.Writer.Status()).
			WithField("latency_ms", time.Since(start).Milliseconds()).
			Info("request handled")
	}
}

// authRequired resolves the bearer token to a user and stores it on the
// context. Unknown or missing tokens end the request with 401.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := s.Users.FindByToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// adminOnly gates a route group on the admin role. Runs after authRequired.
func (s *Server) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c).Role != types.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *types.User {
	return c.MustGet(userKey).(*types.User)
}
