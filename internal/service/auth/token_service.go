// Package auth implements the single-user authentication scheme: a
// shared passphrase is exchanged for a short-lived JWT, and every
// other route requires that JWT. There are no accounts; the collection
// belongs to whoever holds the passphrase.
package auth

import (
	"context"
	"time"
)

// TokenService defines operations for issuing and validating access
// tokens.
type TokenService interface {
	// GenerateToken creates a signed JWT access token.
	GenerateToken(ctx context.Context) (string, error)

	// ValidateToken validates the token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, or ErrInvalidToken
	// on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims carries the validated token's registered claims.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
