package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/paygate/codec"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// FailurePolicy decides what happens to a claim when the facilitator
// rejects a settlement
type FailurePolicy string

const (
	// PolicyBurn keeps the claim and records a failed entry. The intent can
	// never be presented again.
	PolicyBurn FailurePolicy = "burn"
	// PolicyRelease deletes the claim and records nothing, so the payer may
	// retry the same intent.
	PolicyRelease FailurePolicy = "release"
)

var ErrPolicy = errors.New("unknown settlement failure policy")

// ParseFailurePolicy parses "burn" or "release"; empty means burn
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyBurn:
		return PolicyBurn, nil
	case PolicyRelease:
		return PolicyRelease, nil
	}
	return "", fmt.Errorf("%w: %q", ErrPolicy, s)
}

// Status is what is known about a signature
type Status struct {
	Used  bool
	Entry *core.LedgerEntry
}

// PaymentService verifies, consumes and settles payment intents
type PaymentService struct {
	network string
	policy  FailurePolicy

	terms    TermsValidator
	verifier *SignatureVerifier
	guard    *ReplayGuard
	settler  *Settler
	ledger   *AuditLedger

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a PaymentService
type Option func(*PaymentService)

// WithClock replaces time.Now for expiry checks, including the settler's
// re-check, and for ledger timestamps
func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *PaymentService) { s.logger = logger }
}

// WithMetrics sets the collectors outcomes are counted in
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PaymentService) { s.metrics = m }
}

// WithFailurePolicy sets the settlement failure policy
func WithFailurePolicy(p FailurePolicy) Option {
	return func(s *PaymentService) { s.policy = p }
}

// NewPaymentService creates a service accepting intents for network
func NewPaymentService(
	network string,
	verifier *SignatureVerifier,
	guard *ReplayGuard,
	settler *Settler,
	ledger *AuditLedger,
	opts ...Option,
) *PaymentService {
	s := &PaymentService{
		network:  network,
		policy:   PolicyBurn,
		verifier: verifier,
		guard:    guard,
		settler:  settler,
		ledger:   ledger,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if settler != nil {
		settler.now = s.now
	}
	if ledger != nil {
		ledger.now = s.now
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	return s
}

// Network returns the network intents must target
func (s *PaymentService) Network() string {
	return s.network
}

// Policy returns the settlement failure policy
func (s *PaymentService) Policy() FailurePolicy {
	return s.policy
}

// VerifyLocal decodes the payload and checks expiry, network and
// signature, stopping at the first failure. It consumes nothing.
func (s *PaymentService) VerifyLocal(ctx context.Context, encoded string) core.VerifyResult {
	res := s.verifyLocal(encoded)
	s.count("verify_local", res.Error)
	return res
}

// Verify runs VerifyLocal and then checks the intent against expected.
// It consumes nothing.
func (s *PaymentService) Verify(ctx context.Context, encoded string, expected core.Expected) core.VerifyResult {
	res := s.verify(encoded, expected)
	s.count("verify", res.Error)
	return res
}

// Consume verifies the intent, claims its signature and records it in the
// ledger. A valid result grants gated access exactly once per intent.
func (s *PaymentService) Consume(ctx context.Context, encoded string, expected core.Expected) core.ConsumeResult {
	start := time.Now()

	res := s.verify(encoded, expected)
	if !res.Valid {
		s.count("consume", res.Error)
		return core.ConsumeResult{Intent: res.Intent, Error: res.Error}
	}
	intent := res.Intent

	claimed, err := s.guard.TryClaim(ctx, intent.Signature)
	if err != nil {
		s.logger.Error("failed to claim intent", "signature", intent.Signature, "error", err)
		s.count("consume", core.CodeInternalError)
		return core.ConsumeResult{Intent: intent, Error: core.CodeInternalError}
	}
	if !claimed {
		s.guard.ReportReplay(ctx, intent)
		s.count("consume", core.CodeReplayDetected)
		return core.ConsumeResult{Intent: intent, Error: core.CodeReplayDetected}
	}

	entry, err := s.ledger.Record(ctx, intent, core.StatusVerified, nil, time.Since(start))
	if err != nil {
		// The claim stays: the intent is spent even though the audit write failed
		s.logger.Error("failed to record consumed intent", "signature", intent.Signature, "error", err)
		s.count("consume", core.CodeInternalError)
		return core.ConsumeResult{Intent: intent, Error: core.CodeInternalError}
	}

	s.logger.Info("payment intent consumed",
		"payer", intent.Payer, "type", entry.Type, "amount", intent.Amount, "memo", intent.Memo)
	s.count("consume", core.CodeNone)
	return core.ConsumeResult{Valid: true, Intent: intent, Entry: entry}
}

// Settle verifies the intent, claims its signature and forwards it to the
// facilitator once. A rejected settlement is handled by the failure
// policy. An unknown outcome keeps the claim and leaves a pending entry.
func (s *PaymentService) Settle(ctx context.Context, encoded string) core.SettleResult {
	start := time.Now()

	res := s.verifyLocal(encoded)
	if !res.Valid {
		s.count("settle", res.Error)
		return core.SettleResult{Error: res.Error, Outcome: core.OutcomeNotAttempted}
	}
	intent := res.Intent

	claimed, err := s.guard.TryClaim(ctx, intent.Signature)
	if err != nil {
		s.logger.Error("failed to claim intent", "signature", intent.Signature, "error", err)
		s.count("settle", core.CodeInternalError)
		return core.SettleResult{Error: core.CodeInternalError, Outcome: core.OutcomeNotAttempted}
	}
	if !claimed {
		s.guard.ReportReplay(ctx, intent)
		s.count("settle", core.CodeReplayDetected)
		return core.SettleResult{Error: core.CodeReplayDetected, Outcome: core.OutcomeNotAttempted}
	}

	out := s.settler.Settle(ctx, intent, encoded)
	s.count("settle", out.Error)

	switch out.Outcome {
	case core.OutcomeSettled:
		s.record(ctx, intent, core.StatusVerified, out.Settlement, time.Since(start))
		s.logger.Info("payment intent settled",
			"payer", intent.Payer, "amount", intent.Amount, "transaction", out.TransactionRef)

	case core.OutcomeUnknown:
		s.record(ctx, intent, core.StatusPending, nil, time.Since(start))
		s.logger.Warn("settlement outcome unknown, intent left pending", "signature", intent.Signature)

	case core.OutcomeRejected, core.OutcomeNotAttempted:
		if s.policy == PolicyRelease {
			if err := s.guard.Release(ctx, intent.Signature); err != nil {
				s.logger.Error("failed to release claim after rejected settlement",
					"signature", intent.Signature, "error", err)
			}
			break
		}
		s.record(ctx, intent, core.StatusFailed, nil, time.Since(start))
	}

	return out
}

// Resolve settles the fate of a pending entry once the facilitator's
// outcome is known out of band
func (s *PaymentService) Resolve(ctx context.Context, signature string, status core.EntryStatus, settlement *core.Settlement) (*core.LedgerEntry, error) {
	if status != core.StatusVerified && status != core.StatusFailed {
		return nil, fmt.Errorf("cannot resolve to status %q", status)
	}

	if canonical, err := s.verifier.Canonical(s.network, signature); err == nil {
		signature = canonical
	}

	// The store rejects entries that are no longer pending with core.ErrNotPending
	entry, err := s.ledger.AttachSettlement(ctx, signature, status, settlement)
	if err != nil {
		return nil, err
	}
	s.logger.Info("pending settlement resolved", "signature", signature, "status", status)
	return entry, nil
}

// Status returns the ledger entry of signature, if any, and whether the
// signature is claimed
func (s *PaymentService) Status(ctx context.Context, signature string) (*Status, error) {
	if canonical, err := s.verifier.Canonical(s.network, signature); err == nil {
		signature = canonical
	}

	used, err := s.guard.IsUsed(ctx, signature)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.Get(ctx, signature)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return &Status{Used: used, Entry: entry}, nil
}

func (s *PaymentService) verifyLocal(encoded string) core.VerifyResult {
	intent := codec.Decode(encoded)
	if intent == nil {
		return core.VerifyResult{Error: core.CodeInvalidPayload}
	}
	if !s.terms.CheckExpiry(intent, s.now()) {
		return core.VerifyResult{Intent: intent, Error: core.CodePayloadExpired}
	}
	if !s.terms.CheckNetwork(intent, s.network) {
		return core.VerifyResult{Intent: intent, Error: core.CodeWrongNetwork}
	}
	if !s.verifier.Verify(intent) {
		return core.VerifyResult{Intent: intent, Error: core.CodeInvalidSignature}
	}

	canonical, err := s.verifier.Canonical(intent.Network, intent.Signature)
	if err != nil {
		return core.VerifyResult{Intent: intent, Error: core.CodeInvalidSignature}
	}
	intent.Signature = canonical
	return core.VerifyResult{Valid: true, Intent: intent}
}

func (s *PaymentService) verify(encoded string, expected core.Expected) core.VerifyResult {
	res := s.verifyLocal(encoded)
	if !res.Valid {
		return res
	}
	if ok, code := s.terms.CheckTerms(res.Intent, expected); !ok {
		return core.VerifyResult{Intent: res.Intent, Error: code}
	}
	return res
}

func (s *PaymentService) record(ctx context.Context, intent *core.PaymentIntent, status core.EntryStatus, settlement *core.Settlement, d time.Duration) {
	if _, err := s.ledger.Record(ctx, intent, status, settlement, d); err != nil {
		s.logger.Error("failed to record settlement in ledger",
			"signature", intent.Signature, "status", status, "error", err)
	}
}

func (s *PaymentService) count(operation string, code core.Code) {
	result := string(code)
	if code == core.CodeNone {
		result = "valid"
	}
	s.metrics.Verifications.WithLabelValues(operation, result).Inc()
}
