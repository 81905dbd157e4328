package ports

import (
	"context"

	"github.com/layer-3/paygate/core"
)

// EventPublisher publishes audit and security events to other instances
type EventPublisher interface {
	PublishLedgerEntry(ctx context.Context, entry *core.LedgerEntry) error
	PublishReplayDetected(ctx context.Context, signature, payer string) error
}
