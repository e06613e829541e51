package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest plaintext bcrypt accepts.
const MaxPasswordBytes = 72

var (
	// ErrMismatch reports a plaintext that does not match the stored hash.
	ErrMismatch = errors.New("crypto: password mismatch")
	// ErrTooLong reports a plaintext bcrypt would refuse to hash.
	ErrTooLong = errors.New("crypto: password exceeds 72 bytes")
)

// HashPassword hashes plaintext using bcrypt.
func HashPassword(plain string) ([]byte, error) {
	if len(plain) > MaxPasswordBytes {
		return nil, ErrTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrTooLong
	}
	return hash, err
}

// ComparePassword compares plaintext to hashed secret. A wrong password yields
// ErrMismatch; a corrupt or empty hash yields the bcrypt error.
func ComparePassword(hash []byte, plain string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
