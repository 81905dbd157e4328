package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
)

const (
	// LedgerTopic carries every recorded or updated ledger entry
	LedgerTopic = "paygate.ledger"

	// SecurityTopic carries replay attempts
	SecurityTopic = "paygate.security"
)

// ReplayEvent is published when an already consumed signature is presented again
type ReplayEvent struct {
	Signature  string    `json:"signature"`
	Payer      string    `json:"payer"`
	DetectedAt time.Time `json:"detected_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher     message.Publisher
	ledgerTopic   string
	securityTopic string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher:     publisher,
		ledgerTopic:   LedgerTopic,
		securityTopic: SecurityTopic,
	}
}

// PublishLedgerEntry publishes a ledger entry
func (p *WatermillPublisher) PublishLedgerEntry(ctx context.Context, entry *core.LedgerEntry) error {
	return p.publish(ctx, p.ledgerTopic, entry)
}

// PublishReplayDetected publishes a replay attempt
func (p *WatermillPublisher) PublishReplayDetected(ctx context.Context, signature, payer string) error {
	return p.publish(ctx, p.securityTopic, ReplayEvent{
		Signature:  signature,
		Payer:      payer,
		DetectedAt: time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
