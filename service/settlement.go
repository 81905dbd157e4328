package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/metrics"
	"github.com/layer-3/paygate/ports"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultSettlementTimeout = 30 * time.Second

// Settler forwards verified intents to the facilitator
type Settler struct {
	facilitator ports.Facilitator
	timeout     time.Duration
	terms       TermsValidator
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewSettler creates a settler bounding each facilitator call by timeout
func NewSettler(facilitator ports.Facilitator, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Settler {
	if timeout <= 0 {
		timeout = DefaultSettlementTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Settler{
		facilitator: facilitator,
		timeout:     timeout,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

// Settle re-checks expiry and makes exactly one facilitator call.
// Facilitator error codes are returned verbatim. Transport failures map to
// SETTLEMENT_ERROR with an unknown outcome: the transfer may have happened.
func (s *Settler) Settle(ctx context.Context, intent *core.PaymentIntent, encoded string) core.SettleResult {
	if !s.terms.CheckExpiry(intent, s.now()) {
		return s.done(core.SettleResult{Error: core.CodePayloadExpired, Outcome: core.OutcomeNotAttempted})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.facilitator.Settle(ctx, encoded)
	s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, core.ErrSettlementTimeout) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("settlement timed out, outcome unknown",
				"signature", intent.Signature, "timeout", s.timeout)
		} else {
			s.logger.Error("settlement failed, outcome unknown",
				"signature", intent.Signature, "error", err)
		}
		return s.done(core.SettleResult{Error: core.CodeSettlementError, Outcome: core.OutcomeUnknown})
	}

	if !resp.Success {
		code := core.Code(resp.Error)
		if code == core.CodeNone {
			code = core.CodeSettlementError
		}
		s.logger.Info("settlement rejected by facilitator", "signature", intent.Signature, "error", code)
		return s.done(core.SettleResult{Error: code, Outcome: core.OutcomeRejected})
	}

	settlement := resp.Settlement
	if settlement == nil {
		settlement = &core.Settlement{Transaction: resp.Transaction}
	}
	return s.done(core.SettleResult{
		Success:        true,
		TransactionRef: resp.Transaction,
		Outcome:        core.OutcomeSettled,
		Settlement:     settlement,
	})
}

func (s *Settler) done(res core.SettleResult) core.SettleResult {
	s.metrics.Settlements.WithLabelValues(string(res.Outcome)).Inc()
	return res
}
