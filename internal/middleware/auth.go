package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
)

// Context keys set by AuthMiddleware.
const (
	UserEmailKey = "userEmail"
	UserNameKey  = "userName"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// AuthMiddleware validates the Authorization header and stores the caller's
// email and name in the gin context.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserEmailKey, claims.Email)
		c.Set(UserNameKey, claims.Name)
		c.Next()
	}
}

// CurrentUser returns the identity stored by AuthMiddleware. The email is
// empty when the request was not authenticated.
func CurrentUser(c *gin.Context) models.Identity {
	return models.Identity{
		Email: c.GetString(UserEmailKey),
		Name:  c.GetString(UserNameKey),
	}
}
