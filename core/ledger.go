package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the verification status of a ledger entry
type EntryStatus string

const (
	StatusVerified EntryStatus = "verified"
	StatusFailed   EntryStatus = "failed"
	StatusPending  EntryStatus = "pending"
)

// EntryType classifies an intent by its memo prefix
type EntryType string

const (
	TypeRent    EntryType = "rent"
	TypeEntry   EntryType = "entry"
	TypeWager   EntryType = "wager"
	TypePayment EntryType = "payment"
)

// ClassifyMemo maps a memo such as "wager:<matchId>" to its entry type
func ClassifyMemo(memo string) EntryType {
	prefix, _, _ := strings.Cut(memo, ":")
	switch EntryType(prefix) {
	case TypeRent, TypeEntry, TypeWager:
		return EntryType(prefix)
	}
	return TypePayment
}

// Settlement is on-chain metadata reported by the facilitator
type Settlement struct {
	Transaction string     `json:"transaction"`
	Slot        uint64     `json:"slot,omitempty"`
	BlockTime   *time.Time `json:"blockTime,omitempty"`
}

// LedgerEntry is the audit record of a consumed intent
type LedgerEntry struct {
	ID                 string          `json:"id"`
	Signature          string          `json:"signature"`
	Type               EntryType       `json:"type"`
	Sender             string          `json:"sender"`
	Recipient          string          `json:"recipient"`
	Amount             decimal.Decimal `json:"amount"`
	RawAmount          string          `json:"rawAmount"`
	Asset              string          `json:"asset"`
	Nonce              string          `json:"nonce"`
	Memo               string          `json:"memo"`
	Status             EntryStatus     `json:"status"`
	Settlement         *Settlement     `json:"settlement,omitempty"`
	ProcessingDuration time.Duration   `json:"processingDuration"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}
