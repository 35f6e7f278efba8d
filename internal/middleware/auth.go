package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"circulation/internal/services"
)

const (
	ContextUserID   = "userID"
	ContextUsername = "username"
)

// AuthMiddleware rejects requests without a valid "Bearer <token>" Authorization
// header and exposes the staff identity to handlers.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":    reason,
		"category": services.KindUnauthorized,
	})
}
