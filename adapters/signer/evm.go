package signer

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EVMScheme verifies personal_sign (EIP-191) signatures from Ethereum
// wallets. Payers are 0x addresses and signatures are 65-byte hex strings.
type EVMScheme struct{}

// NewEVMScheme creates a new EVM signature scheme
func NewEVMScheme() *EVMScheme {
	return &EVMScheme{}
}

func (s *EVMScheme) Name() string { return SchemeEVM }

// Verify recovers the signer of message and compares it with the payer address
func (s *EVMScheme) Verify(payer string, message []byte, signature string) bool {
	if !common.IsHexAddress(payer) {
		return false
	}
	sig, err := canonicalEVMSignature(signature)
	if err != nil {
		return false
	}

	// SigToPub expects v in {0, 1}
	sig[64] -= 27
	pubKey, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return false
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	expected := common.HexToAddress(payer)
	return bytes.Equal(recovered.Bytes(), expected.Bytes())
}

// Canonical returns the one encoding of signature used as its replay key:
// lowercase 0x hex with v in {27, 28}. High-s signatures are rejected.
func (s *EVMScheme) Canonical(signature string) (string, error) {
	sig, err := canonicalEVMSignature(signature)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// canonicalEVMSignature decodes a 65-byte signature, accepting v in
// {0, 1, 27, 28}, and returns it with v in {27, 28}
func canonicalEVMSignature(signature string) ([]byte, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	sv := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, sv, true) {
		return nil, fmt.Errorf("%w: invalid r, s or v", ErrMalformedSignature)
	}

	sig[64] = v + 27
	return sig, nil
}

// EVMKey signs messages with a secp256k1 private key
type EVMKey struct {
	key *ecdsa.PrivateKey
}

// NewEVMKey generates a random secp256k1 key
func NewEVMKey() (*EVMKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &EVMKey{key: key}, nil
}

// EVMKeyFromHex loads a hex-encoded secp256k1 private key
func EVMKeyFromHex(s string) (*EVMKey, error) {
	key, err := crypto.HexToECDSA(trim0x(s))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &EVMKey{key: key}, nil
}

// Address returns the checksummed 0x address
func (k *EVMKey) Address() string { return crypto.PubkeyToAddress(k.key.PublicKey).Hex() }

// Secret returns the hex private key
func (k *EVMKey) Secret() string { return hexutil.Encode(crypto.FromECDSA(k.key)) }

// Sign returns a 65-byte personal_sign signature with v in {27, 28}
func (k *EVMKey) Sign(message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), k.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
