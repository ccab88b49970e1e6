package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"cabinet/tool"
)

// MutationRateLimit bounds mutating requests process-wide with a token
// bucket. Over-limit requests are rejected immediately with a retry hint,
// never queued, so memory and descriptor usage stay bounded under load.
func MutationRateLimit(perSecond float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, tool.FastReturnError("Too many requests, retry later"))
			return
		}
		c.Next()
	}
}
