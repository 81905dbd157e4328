package http

import (
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/metrics"
	"github.com/layer-3/paygate/ports"
	"github.com/layer-3/paygate/ratelimit"
)

const (
	accessPassKey = "accessPass"

	HeaderWalletAddress = "X-Wallet-Address"
	HeaderAdminToken    = "X-Admin-Token"
)

// RateLimitMiddleware counts the request against class for the caller's
// wallet address, or its IP when no address is given
func RateLimitMiddleware(limiter *ratelimit.Limiter, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.GetHeader(HeaderWalletAddress)
		if identifier == "" {
			identifier = c.ClientIP()
		}

		d := limiter.Check(class, identifier)
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"allowed":      false,
				"blocked":      d.Blocked,
				"retryAfterMs": d.RetryAfter.Milliseconds(),
			})
			return
		}

		if limiter.Enabled() && !d.Unbounded {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}
		c.Next()
	}
}

// AccessPassMiddleware validates a bearer access pass
func AccessPassMiddleware(tokenizer ports.Tokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		pass, err := tokenizer.TokenToPass(token)
		if err != nil {
			if errors.Is(err, core.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access pass expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid access pass"})
			}
			return
		}

		c.Set(accessPassKey, pass)
		c.Next()
	}
}

// AdminMiddleware requires the operator token. With no token configured
// every admin request is refused.
func AdminMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(HeaderAdminToken)
		if adminToken == "" || subtle.ConstantTimeCompare([]byte(given), []byte(adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
		m.HTTPRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
