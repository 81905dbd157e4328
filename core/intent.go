package core

import "time"

// PaymentIntent is a decoded, signed authorization for a single value transfer
type PaymentIntent struct {
	Version    string // Protocol version
	Network    string // Target network identifier, compared exactly
	Payer      string // Public key identifier of the signer
	Recipient  string // Public key identifier of the receiver
	Token      string // Asset identifier
	Amount     string // Non-negative integer count of smallest units
	ValidUntil int64  // Expiry in milliseconds since epoch
	Nonce      string // Caller-chosen uniqueness token
	Memo       string // Purpose, e.g. "rent:<id>:<days>days"
	Signature  string // Detached signature over the canonical encoding of the fields above
}

// ExpiresAt returns ValidUntil as a time
func (p *PaymentIntent) ExpiresAt() time.Time {
	return time.UnixMilli(p.ValidUntil)
}

// Expected holds caller-supplied terms. Empty fields are not checked.
type Expected struct {
	Amount    string
	Recipient string
	Token     string
}

// VerifyResult is the outcome of a local verification
type VerifyResult struct {
	Valid  bool
	Intent *PaymentIntent
	Error  Code
}

// ConsumeResult is the outcome of verifying and claiming an intent for gated access
type ConsumeResult struct {
	Valid  bool
	Intent *PaymentIntent
	Entry  *LedgerEntry
	Error  Code
}

// Outcome describes what is known about a settlement attempt
type Outcome string

const (
	OutcomeSettled  Outcome = "settled"
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnknown means the facilitator may or may not have executed the transfer
	OutcomeUnknown Outcome = "unknown"
	// OutcomeNotAttempted means the intent was refused before any facilitator call
	OutcomeNotAttempted Outcome = "not_attempted"
)

// SettleResult is the outcome of a settlement attempt
type SettleResult struct {
	Success        bool
	TransactionRef string
	Error          Code
	Outcome        Outcome
	Settlement     *Settlement
}
