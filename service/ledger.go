package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
	"github.com/shopspring/decimal"
)

// AuditLedger is the append-only record of consumed intents
type AuditLedger struct {
	store  ports.LedgerStore
	events ports.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLedger creates a ledger writing to store and announcing entries on events
func NewAuditLedger(store ports.LedgerStore, events ports.EventPublisher, logger *slog.Logger) *AuditLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLedger{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends an entry for intent. A signature can be recorded once;
// a second attempt returns core.ErrDuplicateEntry.
func (l *AuditLedger) Record(ctx context.Context, intent *core.PaymentIntent, status core.EntryStatus, settlement *core.Settlement, duration time.Duration) (*core.LedgerEntry, error) {
	amount, err := decimal.NewFromString(intent.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", intent.Amount, err)
	}

	now := l.now().UTC()
	entry := &core.LedgerEntry{
		ID:                 uuid.New().String(),
		Signature:          intent.Signature,
		Type:               core.ClassifyMemo(intent.Memo),
		Sender:             intent.Payer,
		Recipient:          intent.Recipient,
		Amount:             amount,
		RawAmount:          intent.Amount,
		Asset:              intent.Token,
		Nonce:              intent.Nonce,
		Memo:               intent.Memo,
		Status:             status,
		Settlement:         settlement,
		ProcessingDuration: duration,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := l.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	l.publish(ctx, entry)
	return entry, nil
}

// AttachSettlement sets the status and settlement metadata of an existing
// entry. It is the only mutation the ledger permits.
func (l *AuditLedger) AttachSettlement(ctx context.Context, signature string, status core.EntryStatus, settlement *core.Settlement) (*core.LedgerEntry, error) {
	if err := l.store.UpdateSettlement(ctx, signature, status, settlement); err != nil {
		return nil, fmt.Errorf("failed to update ledger entry: %w", err)
	}

	entry, err := l.store.Get(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to reload ledger entry: %w", err)
	}

	l.publish(ctx, entry)
	return entry, nil
}

// Get returns the entry for signature or core.ErrNotFound
func (l *AuditLedger) Get(ctx context.Context, signature string) (*core.LedgerEntry, error) {
	return l.store.Get(ctx, signature)
}

func (l *AuditLedger) publish(ctx context.Context, entry *core.LedgerEntry) {
	if l.events == nil {
		return
	}
	// The entry is already stored; a lost event must not fail the caller
	if err := l.events.PublishLedgerEntry(ctx, entry); err != nil {
		l.logger.Error("failed to publish ledger event", "signature", entry.Signature, "error", err)
	}
}
