package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/paygate/metrics"
	"github.com/layer-3/paygate/ports"
	"github.com/layer-3/paygate/ratelimit"
	"github.com/layer-3/paygate/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the dependencies of the HTTP API
type RouterConfig struct {
	Payments      *service.PaymentService
	Limiter       *ratelimit.Limiter
	Tokenizer     ports.Tokenizer
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	AccessPassTTL time.Duration
	AdminToken    string
	Logger        *slog.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), MetricsMiddleware(cfg.Metrics))

	// Create handlers
	payments := NewPaymentHandlers(cfg.Payments, cfg.Tokenizer, cfg.AccessPassTTL, cfg.Logger)
	admin := NewAdminHandlers(cfg.Payments, cfg.Limiter, cfg.Logger)

	limit := func(class ratelimit.Class) gin.HandlerFunc {
		return RateLimitMiddleware(cfg.Limiter, class)
	}

	// Payment routes
	api := router.Group("/payments")
	{
		api.POST("/verify-local", limit(ratelimit.ClassEntryCheck), payments.VerifyLocal)
		api.POST("/verify", limit(ratelimit.ClassEntryCheck), payments.Verify)
		api.POST("/consume", limit(ratelimit.ClassEntryCheck), payments.Consume)
		api.POST("/settle", limit(ratelimit.ClassPayment), payments.Settle)
		api.GET("/:signature", limit(ratelimit.ClassBalanceCheck), payments.Status)
	}

	// Gated routes
	router.GET("/access", AccessPassMiddleware(cfg.Tokenizer), payments.Access)

	// Operator routes
	ops := router.Group("/admin")
	ops.Use(AdminMiddleware(cfg.AdminToken))
	{
		ops.POST("/rate-limit/block", admin.Block)
		ops.POST("/rate-limit/unblock", admin.Unblock)
		ops.POST("/payments/:signature/resolve", admin.Resolve)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
