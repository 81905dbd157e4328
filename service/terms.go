package service

import (
	"time"

	"github.com/layer-3/paygate/core"
	"github.com/shopspring/decimal"
)

// TermsValidator checks an intent against the clock, the configured
// network and caller-supplied terms
type TermsValidator struct{}

// CheckExpiry reports whether the intent is still valid at now. An intent
// is expired at exactly its ValidUntil.
func (TermsValidator) CheckExpiry(intent *core.PaymentIntent, now time.Time) bool {
	return now.UnixMilli() < intent.ValidUntil
}

// CheckNetwork reports whether the intent targets network
func (TermsValidator) CheckNetwork(intent *core.PaymentIntent, network string) bool {
	return intent.Network == network
}

// CheckTerms compares amount, recipient and token, in that order, and
// returns the code of the first mismatch
func (TermsValidator) CheckTerms(intent *core.PaymentIntent, expected core.Expected) (bool, core.Code) {
	if expected.Amount != "" {
		want, err := decimal.NewFromString(expected.Amount)
		if err != nil {
			return false, core.CodeInsufficientAmount
		}
		got, err := decimal.NewFromString(intent.Amount)
		if err != nil || got.LessThan(want) {
			return false, core.CodeInsufficientAmount
		}
	}
	if expected.Recipient != "" && intent.Recipient != expected.Recipient {
		return false, core.CodeWrongRecipient
	}
	if expected.Token != "" && intent.Token != expected.Token {
		return false, core.CodeWrongToken
	}
	return true, core.CodeNone
}
