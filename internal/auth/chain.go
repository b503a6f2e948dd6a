package auth

import (
	"errors"
)

// ChainVerifier tries each verifier in order and accepts the first success.
// It lets tokens signed with a previous secret keep working during rotation.
type ChainVerifier struct {
	verifiers []TokenVerifier
}

func NewChainVerifier(verifiers ...TokenVerifier) *ChainVerifier {
	return &ChainVerifier{verifiers: verifiers}
}

// VerifyToken reports ErrExpiredToken when any strategy recognised the token as
// expired, and ErrInvalidToken when none recognised it at all
func (c *ChainVerifier) VerifyToken(tokenStr string) (*TokenClaims, error) {
	expired := false

	for _, v := range c.verifiers {
		claims, err := v.VerifyToken(tokenStr)
		if err == nil {
			return claims, nil
		}
		if errors.Is(err, ErrExpiredToken) {
			expired = true
		}
	}

	if expired {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}
