package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/paygate/adapters/signer"
	"github.com/layer-3/paygate/adapters/store"
	"github.com/layer-3/paygate/codec"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/metrics"
	"github.com/layer-3/paygate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testNetwork = "solana:devnet"
	testToken   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFacilitator struct {
	mu      sync.Mutex
	calls   int
	respond func(ctx context.Context, encoded string) (*ports.FacilitatorResponse, error)
}

func (f *fakeFacilitator) Settle(ctx context.Context, encoded string) (*ports.FacilitatorResponse, error) {
	f.mu.Lock()
	f.calls++
	respond := f.respond
	f.mu.Unlock()
	return respond(ctx, encoded)
}

func (f *fakeFacilitator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func settled(tx string) func(context.Context, string) (*ports.FacilitatorResponse, error) {
	return func(context.Context, string) (*ports.FacilitatorResponse, error) {
		return &ports.FacilitatorResponse{
			Success:     true,
			Transaction: tx,
			Settlement:  &core.Settlement{Transaction: tx, Slot: 4242},
		}, nil
	}
}

func rejected(code string) func(context.Context, string) (*ports.FacilitatorResponse, error) {
	return func(context.Context, string) (*ports.FacilitatorResponse, error) {
		return &ports.FacilitatorResponse{Error: code}, nil
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []core.LedgerEntry
	replays []string
}

func (p *recordingPublisher) PublishLedgerEntry(ctx context.Context, entry *core.LedgerEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, *entry)
	return nil
}

func (p *recordingPublisher) PublishReplayDetected(ctx context.Context, signature, payer string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replays = append(p.replays, signature)
	return nil
}

func (p *recordingPublisher) Replays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.replays...)
}

func (p *recordingPublisher) Entries() []core.LedgerEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.LedgerEntry(nil), p.entries...)
}

type fixture struct {
	svc         *PaymentService
	store       *store.MemoryStore
	facilitator *fakeFacilitator
	events      *recordingPublisher
	metrics     *metrics.Metrics
	payer       signer.Key
	recipient   string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	payer, err := signer.NewKey(testNetwork)
	require.NoError(t, err)
	recipient, err := signer.NewKey(testNetwork)
	require.NoError(t, err)

	f := &fixture{
		store:       store.NewMemoryStore(),
		facilitator: &fakeFacilitator{respond: settled("5tx")},
		events:      &recordingPublisher{},
		metrics:     metrics.New(prometheus.NewRegistry()),
		payer:       payer,
		recipient:   recipient.Address(),
	}

	clock := func() time.Time { return testNow }
	opts = append([]Option{WithClock(clock), WithMetrics(f.metrics)}, opts...)
	f.svc = NewPaymentService(
		testNetwork,
		NewSignatureVerifier(signer.NewRegistry()),
		NewReplayGuard(f.store, f.events, nil, f.metrics),
		NewSettler(f.facilitator, time.Second, nil, f.metrics),
		NewAuditLedger(f.store, f.events, nil),
		opts...,
	)
	return f
}

// useEVM switches the fixture to an EVM network with a fresh payer
func (f *fixture) useEVM(t *testing.T) {
	t.Helper()
	network := "eip155:84532"
	key, err := signer.NewKey(network)
	require.NoError(t, err)
	f.payer = key
	f.recipient = "0x000000000000000000000000000000000000dEaD"
	f.svc.network = network
}

// evmIntent returns an unsigned intent for the fixture's EVM network
func (f *fixture) evmIntent(nonce string) *core.PaymentIntent {
	intent := f.intent(nonce)
	intent.Network = f.svc.network
	return intent
}

// intent returns an unsigned intent valid for five minutes from testNow
func (f *fixture) intent(nonce string) *core.PaymentIntent {
	return &core.PaymentIntent{
		Version:    "1",
		Network:    testNetwork,
		Payer:      f.payer.Address(),
		Recipient:  f.recipient,
		Token:      testToken,
		Amount:     "10000",
		ValidUntil: testNow.Add(5 * time.Minute).UnixMilli(),
		Nonce:      nonce,
		Memo:       "rent:room-7:3days",
	}
}

func (f *fixture) sign(t *testing.T, intent *core.PaymentIntent) string {
	t.Helper()
	sig, err := f.payer.Sign(codec.SigningBytes(intent))
	require.NoError(t, err)
	intent.Signature = sig
	return encode(t, intent)
}

func encode(t *testing.T, intent *core.PaymentIntent) string {
	t.Helper()
	encoded, err := codec.Encode(intent)
	require.NoError(t, err)
	return encoded
}
