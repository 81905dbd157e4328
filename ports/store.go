package ports

import (
	"context"

	"github.com/layer-3/paygate/core"
)

// ClaimStore records consumed signatures. Claim must be a single atomic
// conditional insert, safe across processes sharing the backing store.
type ClaimStore interface {
	Claim(ctx context.Context, signature string) (bool, error)
	IsClaimed(ctx context.Context, signature string) (bool, error)
	Release(ctx context.Context, signature string) error
}

// LedgerStore persists audit entries. Insert returns core.ErrDuplicateEntry
// when the signature is already recorded; Get returns core.ErrNotFound.
// UpdateSettlement changes only a pending entry, checking and writing
// atomically, and returns core.ErrNotPending for any other status.
type LedgerStore interface {
	Insert(ctx context.Context, entry *core.LedgerEntry) error
	Get(ctx context.Context, signature string) (*core.LedgerEntry, error)
	UpdateSettlement(ctx context.Context, signature string, status core.EntryStatus, settlement *core.Settlement) error
}
