package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"resale-hub/internal/api/response"
)

// BotKeyAuth guards the code-issuance endpoint. Only the Telegram bot holds
// this key; user traffic never reaches the route.
func BotKeyAuth(key string) gin.HandlerFunc {
	expected := strings.TrimSpace(key)

	return func(c *gin.Context) {
		provided := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if expected == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			response.FailStatus(c, 401, "unauthorized")
			return
		}
		c.Next()
	}
}
