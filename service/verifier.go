package service

import (
	"github.com/layer-3/paygate/codec"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
)

// SignatureVerifier checks that an intent was signed by its payer
type SignatureVerifier struct {
	schemes ports.SchemeResolver
}

// NewSignatureVerifier creates a verifier resolving schemes through schemes
func NewSignatureVerifier(schemes ports.SchemeResolver) *SignatureVerifier {
	return &SignatureVerifier{schemes: schemes}
}

// Verify rebuilds the signed bytes and checks the signature against the
// payer. Unsupported networks and undecodable keys or signatures fail.
func (v *SignatureVerifier) Verify(intent *core.PaymentIntent) bool {
	if intent == nil || intent.Signature == "" {
		return false
	}
	scheme, err := v.schemes.ForNetwork(intent.Network)
	if err != nil {
		return false
	}
	return scheme.Verify(intent.Payer, codec.SigningBytes(intent), intent.Signature)
}

// Canonical returns the single encoding of signature on network. Replay
// claims and ledger entries are keyed by it, so re-encodings of the same
// signature bytes collide.
func (v *SignatureVerifier) Canonical(network, signature string) (string, error) {
	scheme, err := v.schemes.ForNetwork(network)
	if err != nil {
		return "", err
	}
	return scheme.Canonical(signature)
}
