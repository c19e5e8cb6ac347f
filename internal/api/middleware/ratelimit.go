package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"resale-hub/internal/api/response"
)

type slidingWindowCounter struct {
	mu         sync.Mutex
	timestamps []int64
}

var rateLimiterStore sync.Map

// RateLimit applies a sliding-window limit keyed on the client IP.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	return rateLimitWithResolver(limit, window, func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	})
}

// RateLimitByUser keys the window on the authenticated session, falling back
// to the client IP before authentication has run.
func RateLimitByUser(limit int, window time.Duration) gin.HandlerFunc {
	return rateLimitWithResolver(limit, window, func(c *gin.Context) string {
		if claims, ok := GetClaims(c); ok && claims.UserID != "" {
			return "user:" + claims.UserID
		}
		return "user:anonymous:" + c.ClientIP()
	})
}

// RateLimitByJSONField keys the window on a field of the JSON body, so one
// Telegram account cannot burn the budget of everyone behind the same NAT.
// Requests without the field fall back to the client IP.
func RateLimitByJSONField(field string, limit int, window time.Duration) gin.HandlerFunc {
	field = strings.TrimSpace(field)
	return rateLimitWithResolver(limit, window, func(c *gin.Context) string {
		if field == "" {
			return ""
		}
		bodyValue := extractJSONField(c, field)
		if bodyValue == "" {
			return "json:" + field + ":missing:" + c.ClientIP()
		}
		return "json:" + field + ":" + strings.ToLower(bodyValue)
	})
}

func rateLimitWithResolver(limit int, window time.Duration, keyResolver func(c *gin.Context) string) gin.HandlerFunc {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return func(c *gin.Context) {
		rawKey := ""
		if keyResolver != nil {
			rawKey = keyResolver(c)
		}
		if rawKey == "" {
			rawKey = "global"
		}

		entryAny, _ := rateLimiterStore.LoadOrStore(rawKey, &slidingWindowCounter{
			timestamps: make([]int64, 0, limit),
		})
		entry := entryAny.(*slidingWindowCounter)

		now := time.Now().UnixNano()
		cutoff := now - window.Nanoseconds()

		entry.mu.Lock()
		next := entry.timestamps[:0]
		for _, ts := range entry.timestamps {
			if ts > cutoff {
				next = append(next, ts)
			}
		}
		entry.timestamps = next

		if len(entry.timestamps) >= limit {
			entry.mu.Unlock()
			response.FailStatus(c, 429, "too many requests")
			return
		}

		entry.timestamps = append(entry.timestamps, now)
		entry.mu.Unlock()

		c.Next()
	}
}

func extractJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	if len(raw) == 0 {
		return ""
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}

	value, ok := payload[field]
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
