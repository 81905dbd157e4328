package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/paygate/adapters/events"
	"github.com/layer-3/paygate/adapters/facilitator"
	"github.com/layer-3/paygate/adapters/signer"
	"github.com/layer-3/paygate/adapters/store"
	"github.com/layer-3/paygate/adapters/tokenizer"
	"github.com/layer-3/paygate/config"
	"github.com/layer-3/paygate/metrics"
	"github.com/layer-3/paygate/ports"
	"github.com/layer-3/paygate/ratelimit"
	"github.com/layer-3/paygate/service"
	transport "github.com/layer-3/paygate/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type paymentStore interface {
	ports.ClaimStore
	ports.LedgerStore
}

func main() {
	if err := run(); err != nil {
		slog.Error("paygate stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach Redis: %w", err)
		}
	}

	var payments paymentStore
	switch cfg.Store {
	case config.StoreRedis:
		payments = store.NewRedisStore(redisClient)
	case config.StorePostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		payments = pg
	default:
		logger.Warn("using in-memory store, claims do not survive restarts or span instances")
		payments = store.NewMemoryStore()
	}

	// Initialize Watermill publisher
	wmLogger := watermill.NewSlogLogger(logger)
	var publisher message.Publisher
	if cfg.Events == config.EventsRedis {
		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return fmt.Errorf("failed to create Redis publisher: %w", err)
		}
	} else {
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	defer publisher.Close()
	eventPub := events.NewWatermillPublisher(publisher)

	passKey, err := loadPassKey(cfg.AccessPassKeyFile)
	if err != nil {
		return err
	}
	if cfg.AccessPassKeyFile == "" {
		logger.Warn("no PAYGATE_ACCESS_PASS_KEY set, access passes use an ephemeral key")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	facilitatorOpts := []facilitator.Option{facilitator.WithTimeout(cfg.FacilitatorTimeout)}
	if cfg.FacilitatorAuthorization != "" {
		facilitatorOpts = append(facilitatorOpts, facilitator.WithAuthorization(cfg.FacilitatorAuthorization))
	}
	settlementClient := facilitator.NewHTTPClient(cfg.FacilitatorURL, facilitatorOpts...)

	paymentService := service.NewPaymentService(
		cfg.Network,
		service.NewSignatureVerifier(signer.NewRegistry()),
		service.NewReplayGuard(payments, eventPub, logger, m),
		service.NewSettler(settlementClient, cfg.FacilitatorTimeout, logger, m),
		service.NewAuditLedger(payments, eventPub, logger),
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithFailurePolicy(cfg.FailurePolicy),
	)

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:         cfg.RateLimitEnabled,
		Policies:        ratelimit.DefaultPolicies(),
		CleanupInterval: cfg.RateLimitCleanupInterval,
	}, ratelimit.WithLogger(logger), ratelimit.WithMetrics(m))
	limiter.Start(ctx)
	defer limiter.Stop()

	if cfg.AdminToken == "" {
		logger.Warn("no PAYGATE_ADMIN_TOKEN set, admin endpoints are disabled")
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(transport.RouterConfig{
		Payments:      paymentService,
		Limiter:       limiter,
		Tokenizer:     tokenizer.NewJWTTokenizer(passKey),
		Metrics:       m,
		Gatherer:      prometheus.DefaultGatherer,
		AccessPassTTL: cfg.AccessPassTTL,
		AdminToken:    cfg.AdminToken,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("paygate listening",
			"addr", cfg.ListenAddr,
			"network", cfg.Network,
			"store", cfg.Store,
			"rateLimit", cfg.RateLimitEnabled,
			"failurePolicy", cfg.FailurePolicy)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadPassKey reads an EC private key in PEM form, or generates one when
// path is empty
func loadPassKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access pass key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse access pass key: %w", err)
	}
	return key, nil
}
