package core

import "time"

// AccessPass proves that an intent was verified and consumed locally
type AccessPass struct {
	ID        string    // Unique pass identifier
	Payer     string    // Payer of the consumed intent
	Recipient string    // Recipient of the consumed intent
	Memo      string    // Memo of the consumed intent, names the gated resource
	Signature string    // Signature of the consumed intent
	IssuedAt  time.Time // When the pass was issued
	ExpiresAt time.Time // Never later than the intent's ValidUntil
}
