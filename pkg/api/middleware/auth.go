package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gridlock/pkg/auth"
)

const (
	// AuthHeaderKey is the standard Authorization header.
	AuthHeaderKey = "Authorization"
	// ContextPlayerKey stores the authenticated player claims.
	ContextPlayerKey = "player"
	// ContextRequestIDKey stores the request ID.
	ContextRequestIDKey = "request_id"
)

// AuthMiddleware validates the bearer token and stores the player claims in
// the request context. Only mounted when authentication is enabled.
func AuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"hint":  "provide a Bearer token",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "malformed Authorization header",
			})
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set(ContextPlayerKey, claims)
		c.Next()
	}
}

// PlayerFromContext retrieves the authenticated player claims, if any.
func PlayerFromContext(c *gin.Context) (*auth.Claims, bool) {
	value, exists := c.Get(ContextPlayerKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*auth.Claims)
	return claims, ok
}

// RequirePlayerMatch rejects a request whose authenticated identity differs
// from the player id it acts for. A no-op when authentication is disabled.
func RequirePlayerMatch(c *gin.Context, playerID string) bool {
	claims, ok := PlayerFromContext(c)
	if !ok {
		return true
	}
	if claims.PlayerID != playerID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "token does not match player_id",
		})
		return false
	}
	return true
}
