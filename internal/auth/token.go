// ABOUTME: Administrative token verification for gateway public operations.
// ABOUTME: Constant-time comparison of the caller-supplied token against config.

package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidToken indicates the supplied administrative token does not match.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier defines the interface for administrative token verification.
type TokenVerifier interface {
	Verify(token string) error
}

// StaticVerifier implements TokenVerifier against a single configured token.
// Every public gateway operation verifies the caller's token through this
// before any other effect; the gateway never forwards a caller-supplied
// token to the worker.
type StaticVerifier struct {
	token []byte
}

// NewStaticVerifier creates a verifier for the given administrative token.
func NewStaticVerifier(token string) *StaticVerifier {
	return &StaticVerifier{token: []byte(token)}
}

// Verify checks the supplied token in constant time.
func (v *StaticVerifier) Verify(token string) error {
	if subtle.ConstantTimeCompare(v.token, []byte(token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
