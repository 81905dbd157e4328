// Package signer provides the signature schemes used to authenticate
// payment intents and selects one per network.
package signer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
)

const (
	SchemeSVM = "svm"
	SchemeEVM = "evm"
)

var ErrMalformedSignature = errors.New("malformed signature")

// Key signs intent bytes on behalf of a payer
type Key interface {
	Address() string
	Secret() string
	Sign(message []byte) (string, error)
}

var legacyNetworks = map[string]string{
	"solana":         SchemeSVM,
	"solana-devnet":  SchemeSVM,
	"solana-testnet": SchemeSVM,
	"ethereum":       SchemeEVM,
	"base":           SchemeEVM,
	"base-sepolia":   SchemeEVM,
	"polygon":        SchemeEVM,
}

// SchemeName returns the scheme for a network: CAIP-2 namespaces
// ("solana:<ref>", "eip155:<chainId>") or a known legacy name.
func SchemeName(network string) (string, error) {
	if namespace, _, ok := strings.Cut(network, ":"); ok {
		switch namespace {
		case "solana":
			return SchemeSVM, nil
		case "eip155":
			return SchemeEVM, nil
		}
	}
	if scheme, ok := legacyNetworks[network]; ok {
		return scheme, nil
	}
	return "", fmt.Errorf("%w: %s", core.ErrUnsupportedNetwork, network)
}

// Registry resolves the signature scheme of a network
type Registry struct {
	schemes map[string]ports.SignatureScheme
}

// NewRegistry creates a registry with the given schemes, or the SVM and
// EVM schemes when none are given
func NewRegistry(schemes ...ports.SignatureScheme) *Registry {
	if len(schemes) == 0 {
		schemes = []ports.SignatureScheme{NewSVMScheme(), NewEVMScheme()}
	}
	r := &Registry{schemes: make(map[string]ports.SignatureScheme, len(schemes))}
	for _, s := range schemes {
		r.schemes[s.Name()] = s
	}
	return r
}

// ForNetwork returns the scheme that verifies signatures for network
func (r *Registry) ForNetwork(network string) (ports.SignatureScheme, error) {
	name, err := SchemeName(network)
	if err != nil {
		return nil, err
	}
	scheme, ok := r.schemes[name]
	if !ok {
		return nil, fmt.Errorf("%w: no %s scheme registered", core.ErrUnsupportedNetwork, name)
	}
	return scheme, nil
}

// NewKey generates a key for the network's scheme
func NewKey(network string) (Key, error) {
	name, err := SchemeName(network)
	if err != nil {
		return nil, err
	}
	if name == SchemeEVM {
		return NewEVMKey()
	}
	return NewSVMKey()
}

// LoadKey parses a private key for the network's scheme
func LoadKey(network, secret string) (Key, error) {
	name, err := SchemeName(network)
	if err != nil {
		return nil, err
	}
	if name == SchemeEVM {
		return EVMKeyFromHex(secret)
	}
	return SVMKeyFromBase58(secret)
}
