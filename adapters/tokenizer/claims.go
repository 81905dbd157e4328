package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with the consumed intent's details
type AccessClaims struct {
	jwt.RegisteredClaims
	Recipient string `json:"rcp"`
	Memo      string `json:"memo"`
	Signature string `json:"sig"` // Signature of the consumed intent
}
