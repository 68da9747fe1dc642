package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const AuthContextKey = "api_key"

// KeyAuth validates the bearer token on every request against the
// configured set of allowed API keys, using a constant-time comparison so
// response latency does not leak how many leading bytes matched.
func KeyAuth(allowedKeys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// The "Bearer " prefix is a textual convention here, not a
		// protocol requirement: strip it if present, but a raw key sent
		// without it is just as valid.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if !keyAllowed(token, allowedKeys) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Set(AuthContextKey, token)
		c.Next()
	}
}

// keyAllowed reports whether token matches one of allowed, comparing every
// candidate so the check doesn't short-circuit on the first match and leak
// which index was checked via timing.
func keyAllowed(token string, allowed []string) bool {
	var anyMatch byte
	for _, k := range allowed {
		if len(k) != len(token) {
			continue
		}
		anyMatch |= byte(subtle.ConstantTimeCompare([]byte(token), []byte(k)))
	}
	return anyMatch == 1
}

// GetAPIKey retrieves the authenticated API key from the context.
func GetAPIKey(c *gin.Context) (string, bool) {
	key, exists := c.Get(AuthContextKey)
	if !exists {
		return "", false
	}
	keyStr, ok := key.(string)
	return keyStr, ok
}
