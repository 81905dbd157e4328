package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/paygate/core"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Schema creates the claim and ledger tables. The primary key on
// payment_claims is what makes Claim atomic across processes.
const Schema = `
CREATE TABLE IF NOT EXISTS payment_claims (
	signature  TEXT PRIMARY KEY,
	claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                     UUID PRIMARY KEY,
	signature              TEXT NOT NULL UNIQUE,
	type                   TEXT NOT NULL,
	sender                 TEXT NOT NULL,
	recipient              TEXT NOT NULL,
	amount                 NUMERIC NOT NULL,
	raw_amount             TEXT NOT NULL,
	asset                  TEXT NOT NULL,
	nonce                  TEXT NOT NULL,
	memo                   TEXT NOT NULL,
	status                 TEXT NOT NULL,
	settlement_tx          TEXT,
	settlement_slot        BIGINT,
	settlement_block_time  TIMESTAMPTZ,
	processing_duration_ms BIGINT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is a PostgreSQL implementation of the ClaimStore and
// LedgerStore interfaces
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to the database and verifies the connection
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

// Migrate creates the tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	s.db.Close()
}

// Claim inserts signature; a unique violation means it was already claimed
func (s *PostgresStore) Claim(ctx context.Context, signature string) (bool, error) {
	_, err := s.db.Exec(ctx, "INSERT INTO payment_claims (signature) VALUES ($1)", signature)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim insert failed: %w", err)
	}
	return true, nil
}

// IsClaimed checks if signature has been claimed
func (s *PostgresStore) IsClaimed(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM payment_claims WHERE signature = $1)", signature).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("claim lookup failed: %w", err)
	}
	return exists, nil
}

// Release removes a claim
func (s *PostgresStore) Release(ctx context.Context, signature string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM payment_claims WHERE signature = $1", signature); err != nil {
		return fmt.Errorf("claim release failed: %w", err)
	}
	return nil
}

// Insert stores a new ledger entry
func (s *PostgresStore) Insert(ctx context.Context, entry *core.LedgerEntry) error {
	var (
		tx        *string
		slot      *int64
		blockTime *time.Time
	)
	if entry.Settlement != nil {
		tx, slot, blockTime = settlementColumns(entry.Settlement)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO ledger_entries (
			id, signature, type, sender, recipient, amount, raw_amount, asset, nonce, memo, status,
			settlement_tx, settlement_slot, settlement_block_time, processing_duration_ms, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		entry.ID, entry.Signature, string(entry.Type), entry.Sender, entry.Recipient,
		entry.Amount.String(), entry.RawAmount, entry.Asset, entry.Nonce, entry.Memo, string(entry.Status),
		tx, slot, blockTime, entry.ProcessingDuration.Milliseconds(), entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateEntry
		}
		return fmt.Errorf("ledger insert failed: %w", err)
	}
	return nil
}

// Get retrieves a ledger entry by signature
func (s *PostgresStore) Get(ctx context.Context, signature string) (*core.LedgerEntry, error) {
	var (
		entry      core.LedgerEntry
		entryType  string
		status     string
		amount     string
		tx         *string
		slot       *int64
		blockTime  *time.Time
		durationMs int64
	)

	err := s.db.QueryRow(ctx, `
		SELECT id::text, signature, type, sender, recipient, amount::text, raw_amount, asset, nonce, memo, status,
			settlement_tx, settlement_slot, settlement_block_time, processing_duration_ms, created_at, updated_at
		FROM ledger_entries WHERE signature = $1`, signature,
	).Scan(
		&entry.ID, &entry.Signature, &entryType, &entry.Sender, &entry.Recipient, &amount, &entry.RawAmount,
		&entry.Asset, &entry.Nonce, &entry.Memo, &status, &tx, &slot, &blockTime, &durationMs,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("ledger query failed: %w", err)
	}

	entry.Type = core.EntryType(entryType)
	entry.Status = core.EntryStatus(status)
	entry.ProcessingDuration = time.Duration(durationMs) * time.Millisecond
	if entry.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	if tx != nil {
		entry.Settlement = &core.Settlement{Transaction: *tx, BlockTime: blockTime}
		if slot != nil {
			entry.Settlement.Slot = uint64(*slot)
		}
	}

	return &entry, nil
}

// UpdateSettlement sets the status and settlement metadata of a pending
// entry. The status condition is part of the UPDATE.
func (s *PostgresStore) UpdateSettlement(ctx context.Context, signature string, status core.EntryStatus, settlement *core.Settlement) error {
	var (
		tx        *string
		slot      *int64
		blockTime *time.Time
	)
	if settlement != nil {
		tx, slot, blockTime = settlementColumns(settlement)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE ledger_entries
		SET status = $1, settlement_tx = $2, settlement_slot = $3, settlement_block_time = $4, updated_at = now()
		WHERE signature = $5 AND status = $6`,
		string(status), tx, slot, blockTime, signature, string(core.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("ledger update failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE signature = $1)`, signature,
	).Scan(&exists); err != nil {
		return fmt.Errorf("ledger lookup failed: %w", err)
	}
	if !exists {
		return core.ErrNotFound
	}
	return core.ErrNotPending
}

func settlementColumns(st *core.Settlement) (*string, *int64, *time.Time) {
	tx := st.Transaction
	var slot *int64
	if st.Slot > 0 {
		v := int64(st.Slot)
		slot = &v
	}
	return &tx, slot, st.BlockTime
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
