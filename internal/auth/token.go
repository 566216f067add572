// Package auth issues and verifies bearer tokens that bind an API caller to
// a Solana public key.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"solana-presale/internal/solana"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the registered claims plus the caller the token speaks for.
type Claims struct {
	jwt.RegisteredClaims
	Caller string `json:"caller"`
}

// GenerateToken signs an HS256 token for caller that expires after ttl.
func GenerateToken(caller solana.PublicKey, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("empty signing secret")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Caller: caller.String(),
	})

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// CallerFromToken verifies tokenString and returns the caller it names.
func CallerFromToken(tokenString string, secret []byte) (solana.PublicKey, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return solana.PublicKey{}, ErrTokenExpired
		}
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return solana.PublicKey{}, ErrInvalidToken
	}

	caller, err := solana.ParsePublicKey(claims.Caller)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: caller claim: %v", ErrInvalidToken, err)
	}
	return caller, nil
}
