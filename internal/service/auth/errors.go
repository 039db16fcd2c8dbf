package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or the
	// signature does not match.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf in
	// the future).
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrInvalidPassphrase indicates the presented passphrase does not
	// match the configured hash.
	ErrInvalidPassphrase = errors.New("invalid passphrase")
)
