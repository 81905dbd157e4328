package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/paygate/core"
	"github.com/redis/go-redis/v9"
)

const maxWatchAttempts = 5

// RedisStore is a Redis implementation of the ClaimStore and LedgerStore
// interfaces. Claims and entries are written with SETNX and never expire.
type RedisStore struct {
	client      *redis.Client
	claimPrefix string
	entryPrefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		claimPrefix: "paygate:claim:",
		entryPrefix: "paygate:ledger:",
	}
}

// Claim atomically records signature; false means it was already claimed
func (s *RedisStore) Claim(ctx context.Context, signature string) (bool, error) {
	key := s.claimPrefix + signature

	ok, err := s.client.SetNX(ctx, key, time.Now().UnixMilli(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim signature: %w", err)
	}

	return ok, nil
}

// IsClaimed checks if signature has been claimed
func (s *RedisStore) IsClaimed(ctx context.Context, signature string) (bool, error) {
	key := s.claimPrefix + signature

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}

	return val > 0, nil
}

// Release removes a claim
func (s *RedisStore) Release(ctx context.Context, signature string) error {
	if err := s.client.Del(ctx, s.claimPrefix+signature).Err(); err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

// Insert stores a new ledger entry
func (s *RedisStore) Insert(ctx context.Context, entry *core.LedgerEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.entryPrefix+entry.Signature, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	if !ok {
		return core.ErrDuplicateEntry
	}

	return nil
}

// Get retrieves a ledger entry by signature
func (s *RedisStore) Get(ctx context.Context, signature string) (*core.LedgerEntry, error) {
	payload, err := s.client.Get(ctx, s.entryPrefix+signature).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	var entry core.LedgerEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// UpdateSettlement sets the status and settlement metadata of a pending
// entry. The check and write run in a WATCH transaction; a concurrent
// writer aborts it and the check is repeated against the new value.
func (s *RedisStore) UpdateSettlement(ctx context.Context, signature string, status core.EntryStatus, settlement *core.Settlement) error {
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.updatePending(ctx, signature, status, settlement)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("ledger update for %s kept conflicting", signature)
}

func (s *RedisStore) updatePending(ctx context.Context, signature string, status core.EntryStatus, settlement *core.Settlement) error {
	key := s.entryPrefix + signature

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrNotFound
			}
			return fmt.Errorf("failed to get entry: %w", err)
		}

		var entry core.LedgerEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		if entry.Status != core.StatusPending {
			return core.ErrNotPending
		}

		entry.Status = status
		entry.Settlement = settlement
		entry.UpdatedAt = time.Now()

		updated, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
