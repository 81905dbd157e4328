package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/paygate/core"
)

// MemoryStore is an in-memory implementation of the ClaimStore and
// LedgerStore interfaces. Claims do not survive a restart, so it only
// suits single-instance development and tests.
type MemoryStore struct {
	claims  map[string]time.Time
	entries map[string]core.LedgerEntry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:  make(map[string]time.Time),
		entries: make(map[string]core.LedgerEntry),
	}
}

// Claim inserts signature if absent
func (s *MemoryStore) Claim(ctx context.Context, signature string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[signature]; exists {
		return false, nil
	}
	s.claims[signature] = time.Now()
	return true, nil
}

// IsClaimed checks if signature has been claimed
func (s *MemoryStore) IsClaimed(ctx context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.claims[signature]
	return exists, nil
}

// Release removes a claim
func (s *MemoryStore) Release(ctx context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, signature)
	return nil
}

// Insert stores a new ledger entry
func (s *MemoryStore) Insert(ctx context.Context, entry *core.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Signature]; exists {
		return core.ErrDuplicateEntry
	}
	s.entries[entry.Signature] = cloneEntry(entry)
	return nil
}

// Get retrieves a ledger entry by signature
func (s *MemoryStore) Get(ctx context.Context, signature string) (*core.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[signature]
	if !exists {
		return nil, core.ErrNotFound
	}
	out := cloneEntry(&entry)
	return &out, nil
}

// UpdateSettlement sets the status and settlement metadata of a pending entry
func (s *MemoryStore) UpdateSettlement(ctx context.Context, signature string, status core.EntryStatus, settlement *core.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[signature]
	if !exists {
		return core.ErrNotFound
	}
	if entry.Status != core.StatusPending {
		return core.ErrNotPending
	}
	entry.Status = status
	entry.Settlement = cloneSettlement(settlement)
	entry.UpdatedAt = time.Now()
	s.entries[signature] = entry
	return nil
}

// cloneEntry copies entry so stored records share no pointers with callers
func cloneEntry(entry *core.LedgerEntry) core.LedgerEntry {
	out := *entry
	out.Settlement = cloneSettlement(entry.Settlement)
	return out
}

func cloneSettlement(st *core.Settlement) *core.Settlement {
	if st == nil {
		return nil
	}
	out := *st
	if st.BlockTime != nil {
		bt := *st.BlockTime
		out.BlockTime = &bt
	}
	return &out
}
