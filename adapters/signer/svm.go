package signer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SVMScheme verifies ed25519 signatures from Solana wallets. Payers are
// base58 public keys and signatures are base58 encoded.
type SVMScheme struct{}

// NewSVMScheme creates a new Solana signature scheme
func NewSVMScheme() *SVMScheme {
	return &SVMScheme{}
}

func (s *SVMScheme) Name() string { return SchemeSVM }

// Verify checks a base58 signature over message against the payer's public key
func (s *SVMScheme) Verify(payer string, message []byte, signature string) bool {
	pub, err := solana.PublicKeyFromBase58(payer)
	if err != nil {
		return false
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return false
	}
	return sig.Verify(pub, message)
}

// Canonical returns the base58 re-encoding of the decoded signature
func (s *SVMScheme) Canonical(signature string) (string, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return sig.String(), nil
}

// SVMKey signs messages with a Solana private key
type SVMKey struct {
	key solana.PrivateKey
}

// NewSVMKey generates a random Solana key
func NewSVMKey() (*SVMKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &SVMKey{key: key}, nil
}

// SVMKeyFromBase58 loads a Solana private key
func SVMKeyFromBase58(s string) (*SVMKey, error) {
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, err
	}
	return &SVMKey{key: key}, nil
}

// Address returns the base58 public key
func (k *SVMKey) Address() string { return k.key.PublicKey().String() }

// Secret returns the base58 private key
func (k *SVMKey) Secret() string { return k.key.String() }

// Sign returns a base58 ed25519 signature over message
func (k *SVMKey) Sign(message []byte) (string, error) {
	sig, err := k.key.Sign(message)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
