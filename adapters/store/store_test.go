package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend interface {
	ports.ClaimStore
	ports.LedgerStore
}

func backends(t *testing.T) map[string]backend {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	out := map[string]backend{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
	}

	if dsn := os.Getenv("PAYGATE_TEST_DATABASE_URL"); dsn != "" {
		ctx := context.Background()
		pg, err := NewPostgresStore(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, pg.Migrate(ctx))
		t.Cleanup(pg.Close)
		out["postgres"] = pg
	}

	return out
}

func newEntry(signature string) *core.LedgerEntry {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.LedgerEntry{
		ID:                 uuid.New().String(),
		Signature:          signature,
		Type:               core.TypeWager,
		Sender:             "payer",
		Recipient:          "recipient",
		Amount:             decimal.RequireFromString("10000"),
		RawAmount:          "10000",
		Asset:              "USDC",
		Nonce:              "n-1",
		Memo:               "wager:match-9",
		Status:             core.StatusPending,
		ProcessingDuration: 42 * time.Millisecond,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func uniqueSig(name string) string {
	return fmt.Sprintf("%s-%s", name, uuid.New().String())
}

func TestClaimOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sig := uniqueSig("claim")

			used, err := s.IsClaimed(ctx, sig)
			require.NoError(t, err)
			assert.False(t, used)

			claimed, err := s.Claim(ctx, sig)
			require.NoError(t, err)
			assert.True(t, claimed)

			claimed, err = s.Claim(ctx, sig)
			require.NoError(t, err)
			assert.False(t, claimed)

			used, err = s.IsClaimed(ctx, sig)
			require.NoError(t, err)
			assert.True(t, used)

			require.NoError(t, s.Release(ctx, sig))
			claimed, err = s.Claim(ctx, sig)
			require.NoError(t, err)
			assert.True(t, claimed)
		})
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	const workers = 32

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sig := uniqueSig("race")
			var wins atomic.Int32
			var wg sync.WaitGroup

			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					claimed, err := s.Claim(ctx, sig)
					assert.NoError(t, err)
					if claimed {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestLedgerInsertGetUpdate(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			entry := newEntry(uniqueSig("ledger"))

			_, err := s.Get(ctx, entry.Signature)
			assert.ErrorIs(t, err, core.ErrNotFound)

			require.NoError(t, s.Insert(ctx, entry))
			assert.ErrorIs(t, s.Insert(ctx, newEntry(entry.Signature)), core.ErrDuplicateEntry)

			got, err := s.Get(ctx, entry.Signature)
			require.NoError(t, err)
			assert.Equal(t, entry.ID, got.ID)
			assert.Equal(t, core.StatusPending, got.Status)
			assert.True(t, entry.Amount.Equal(got.Amount))
			assert.Equal(t, entry.Memo, got.Memo)
			assert.Nil(t, got.Settlement)

			blockTime := time.Now().UTC().Truncate(time.Second)
			settlement := &core.Settlement{Transaction: "5xTx", Slot: 1234, BlockTime: &blockTime}
			require.NoError(t, s.UpdateSettlement(ctx, entry.Signature, core.StatusVerified, settlement))

			got, err = s.Get(ctx, entry.Signature)
			require.NoError(t, err)
			assert.Equal(t, core.StatusVerified, got.Status)
			require.NotNil(t, got.Settlement)
			assert.Equal(t, "5xTx", got.Settlement.Transaction)
			assert.Equal(t, uint64(1234), got.Settlement.Slot)
			require.NotNil(t, got.Settlement.BlockTime)
			assert.True(t, blockTime.Equal(*got.Settlement.BlockTime))

			// A finalized entry never changes again
			err = s.UpdateSettlement(ctx, entry.Signature, core.StatusFailed, nil)
			assert.ErrorIs(t, err, core.ErrNotPending)
			got, err = s.Get(ctx, entry.Signature)
			require.NoError(t, err)
			assert.Equal(t, core.StatusVerified, got.Status)
			require.NotNil(t, got.Settlement)

			err = s.UpdateSettlement(ctx, uniqueSig("missing"), core.StatusFailed, nil)
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestConcurrentUpdatesFinalizeOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			entry := newEntry(uniqueSig("resolve"))
			require.NoError(t, s.Insert(ctx, entry))

			var wins, notPending atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 8; i++ {
				status := core.StatusVerified
				if i%2 == 1 {
					status = core.StatusFailed
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					err := s.UpdateSettlement(ctx, entry.Signature, status, nil)
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, core.ErrNotPending):
						notPending.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			assert.Equal(t, int32(7), notPending.Load())
		})
	}
}

func TestMemoryStoreSharesNoSettlement(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	blockTime := time.Now().UTC()
	entry := newEntry(uniqueSig("copy"))
	entry.Status = core.StatusVerified
	entry.Settlement = &core.Settlement{Transaction: "tx-1", BlockTime: &blockTime}
	require.NoError(t, s.Insert(ctx, entry))

	entry.Settlement.Transaction = "tampered"
	*entry.Settlement.BlockTime = time.Time{}

	got, err := s.Get(ctx, entry.Signature)
	require.NoError(t, err)
	got.Settlement.Transaction = "tampered again"

	again, err := s.Get(ctx, entry.Signature)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", again.Settlement.Transaction)
	assert.True(t, blockTime.Equal(*again.Settlement.BlockTime))

	pending := newEntry(uniqueSig("copy-update"))
	require.NoError(t, s.Insert(ctx, pending))
	settlement := &core.Settlement{Transaction: "tx-2"}
	require.NoError(t, s.UpdateSettlement(ctx, pending.Signature, core.StatusVerified, settlement))
	settlement.Transaction = "tampered"

	got, err = s.Get(ctx, pending.Signature)
	require.NoError(t, err)
	assert.Equal(t, "tx-2", got.Settlement.Transaction)
}
