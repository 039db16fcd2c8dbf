package auth

import "golang.org/x/crypto/bcrypt"

// PassphraseVerifier defines the interface for checking the shared
// passphrase against its stored hash.
type PassphraseVerifier interface {
	// Compare returns nil when the plaintext matches the hash.
	Compare(hashedPassphrase, passphrase string) error
}

// BcryptVerifier implements PassphraseVerifier using bcrypt.
type BcryptVerifier struct{}

// NewBcryptVerifier creates a new BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare implements PassphraseVerifier.
func (v *BcryptVerifier) Compare(hashedPassphrase, passphrase string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassphrase), []byte(passphrase)); err != nil {
		return ErrInvalidPassphrase
	}
	return nil
}

// HashPassphrase produces the bcrypt hash for a passphrase, used when
// provisioning RECALL_AUTH_PASSPHRASE_HASH.
func HashPassphrase(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
