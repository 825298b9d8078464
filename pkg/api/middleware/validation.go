package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identifier limits. Game and player ids travel as URL segments, persistence
// keys and coordination values, so they are kept short and printable.
const (
	MaxGameIDLength   = 128
	MaxPlayerIDLength = 128
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidationError represents a rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateGameID checks a room identifier.
func ValidateGameID(id string) error {
	return validateIdentifier("game_id", id, MaxGameIDLength)
}

// ValidatePlayerID checks a player identifier.
func ValidatePlayerID(id string) error {
	return validateIdentifier("player_id", id, MaxPlayerIDLength)
}

func validateIdentifier(field, id string, max int) error {
	if id == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if len(id) > max {
		return &ValidationError{Field: field, Message: "exceeds maximum length"}
	}
	if !identifierPattern.MatchString(id) {
		return &ValidationError{Field: field, Message: "contains invalid characters"}
	}
	return nil
}

// BodySizeLimitMiddleware limits request body size.
func BodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds standard security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// RequestIDMiddleware attaches a request ID for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
