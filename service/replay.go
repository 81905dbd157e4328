package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/metrics"
	"github.com/layer-3/paygate/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// ReplayGuard enforces at-most-once use of an intent signature
type ReplayGuard struct {
	claims  ports.ClaimStore
	events  ports.EventPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewReplayGuard creates a guard over claims. Replays are reported through
// events, logger and m.
func NewReplayGuard(claims ports.ClaimStore, events ports.EventPublisher, logger *slog.Logger, m *metrics.Metrics) *ReplayGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &ReplayGuard{
		claims:  claims,
		events:  events,
		logger:  logger,
		metrics: m,
	}
}

// TryClaim atomically marks signature as used. It returns false when the
// signature was already claimed.
func (g *ReplayGuard) TryClaim(ctx context.Context, signature string) (bool, error) {
	claimed, err := g.claims.Claim(ctx, signature)
	if err != nil {
		return false, fmt.Errorf("failed to claim signature: %w", err)
	}
	return claimed, nil
}

// IsUsed reports whether signature was claimed, without claiming it
func (g *ReplayGuard) IsUsed(ctx context.Context, signature string) (bool, error) {
	used, err := g.claims.IsClaimed(ctx, signature)
	if err != nil {
		return false, fmt.Errorf("failed to look up signature: %w", err)
	}
	return used, nil
}

// Release deletes a claim so the intent may be presented again
func (g *ReplayGuard) Release(ctx context.Context, signature string) error {
	if err := g.claims.Release(ctx, signature); err != nil {
		return fmt.Errorf("failed to release signature: %w", err)
	}
	return nil
}

// ReportReplay records a rejected reuse of intent as a security event
func (g *ReplayGuard) ReportReplay(ctx context.Context, intent *core.PaymentIntent) {
	g.logger.Warn("security: replayed payment intent rejected",
		"payer", intent.Payer,
		"recipient", intent.Recipient,
		"nonce", intent.Nonce,
		"signature", intent.Signature)
	g.metrics.ReplayRejections.Inc()

	if g.events == nil {
		return
	}
	if err := g.events.PublishReplayDetected(ctx, intent.Signature, intent.Payer); err != nil {
		g.logger.Error("failed to publish replay event", "signature", intent.Signature, "error", err)
	}
}
