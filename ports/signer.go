package ports

// SignatureScheme verifies detached signatures for one family of networks
type SignatureScheme interface {
	Name() string
	Verify(payer string, message []byte, signature string) bool
	// Canonical maps every accepted encoding of a signature to one string
	Canonical(signature string) (string, error)
}

// SchemeResolver selects the signature scheme for a network
type SchemeResolver interface {
	ForNetwork(network string) (SignatureScheme, error)
}
