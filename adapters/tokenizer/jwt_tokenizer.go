package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
)

const AudienceAccess = "paygate:access"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// PassToToken converts an AccessPass to a signed JWT
func (j *JWTTokenizer) PassToToken(pass *core.AccessPass) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pass.Payer,
			ID:        pass.ID,
			ExpiresAt: jwt.NewNumericDate(pass.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(pass.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		Recipient: pass.Recipient,
		Memo:      pass.Memo,
		Signature: pass.Signature,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access pass: %w", err)
	}

	return signedToken, nil
}

// TokenToPass parses and validates a JWT and returns the AccessPass it carries
func (j *JWTTokenizer) TokenToPass(tokenStr string) (*core.AccessPass, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceAccess), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse access pass: %w", core.ErrInvalidToken)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	return &core.AccessPass{
		ID:        claims.ID,
		Payer:     claims.Subject,
		Recipient: claims.Recipient,
		Memo:      claims.Memo,
		Signature: claims.Signature,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
