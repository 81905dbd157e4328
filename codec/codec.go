// Package codec converts payment intents to and from their transport form:
// canonical JSON with a fixed field order, base64 encoded.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/layer-3/paygate/core"
)

var amountPattern = regexp.MustCompile(`^[0-9]+$`)

// wireIntent fixes the canonical field order. Do not reorder: signatures
// are produced over this exact layout.
type wireIntent struct {
	Version    string `json:"version"`
	Network    string `json:"network"`
	Payer      string `json:"payer"`
	Recipient  string `json:"recipient"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	ValidUntil int64  `json:"validUntil"`
	Nonce      string `json:"nonce"`
	Memo       string `json:"memo"`
	Signature  string `json:"signature"`
}

// unsignedIntent is wireIntent without the signature field
type unsignedIntent struct {
	Version    string `json:"version"`
	Network    string `json:"network"`
	Payer      string `json:"payer"`
	Recipient  string `json:"recipient"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	ValidUntil int64  `json:"validUntil"`
	Nonce      string `json:"nonce"`
	Memo       string `json:"memo"`
}

// Encode converts an intent to base64-encoded canonical JSON.
func Encode(intent *core.PaymentIntent) (string, error) {
	data, err := marshal(wireIntent{
		Version:    intent.Version,
		Network:    intent.Network,
		Payer:      intent.Payer,
		Recipient:  intent.Recipient,
		Token:      intent.Token,
		Amount:     intent.Amount,
		ValidUntil: intent.ValidUntil,
		Nonce:      intent.Nonce,
		Memo:       intent.Memo,
		Signature:  intent.Signature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal intent: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses an encoded intent. It returns nil for malformed base64,
// malformed JSON or an amount that is not a non-negative integer string.
func Decode(encoded string) *core.PaymentIntent {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}

	var w wireIntent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil
	}
	if !amountPattern.MatchString(w.Amount) {
		return nil
	}

	return &core.PaymentIntent{
		Version:    w.Version,
		Network:    w.Network,
		Payer:      w.Payer,
		Recipient:  w.Recipient,
		Token:      w.Token,
		Amount:     w.Amount,
		ValidUntil: w.ValidUntil,
		Nonce:      w.Nonce,
		Memo:       w.Memo,
		Signature:  w.Signature,
	}
}

// SigningBytes returns the canonical encoding of every field except the signature.
func SigningBytes(intent *core.PaymentIntent) []byte {
	// marshal cannot fail for a struct of strings and an int64
	data, _ := marshal(unsignedIntent{
		Version:    intent.Version,
		Network:    intent.Network,
		Payer:      intent.Payer,
		Recipient:  intent.Recipient,
		Token:      intent.Token,
		Amount:     intent.Amount,
		ValidUntil: intent.ValidUntil,
		Nonce:      intent.Nonce,
		Memo:       intent.Memo,
	})
	return data
}

// ValidAmount reports whether s is a non-negative base-10 integer string.
func ValidAmount(s string) bool {
	return amountPattern.MatchString(s)
}

// marshal encodes without HTML escaping so memos survive byte-for-byte
// across implementations that do not escape <, > and &.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
