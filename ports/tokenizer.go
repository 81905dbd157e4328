package ports

import "github.com/layer-3/paygate/core"

// Tokenizer converts access passes to and from bearer tokens
type Tokenizer interface {
	PassToToken(pass *core.AccessPass) (string, error)
	TokenToPass(token string) (*core.AccessPass, error)
}
