package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMismatch indicates the plaintext does not match the stored hash.
	ErrMismatch = errors.New("password mismatch")
	// ErrTooLong indicates the plaintext exceeds bcrypt's 72-byte input limit.
	ErrTooLong = errors.New("password too long")
)

// Hash returns a bcrypt hash of plaintext at the given cost.
// A cost of 0 selects bcrypt.DefaultCost.
func Hash(plaintext string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrTooLong
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks plaintext against a bcrypt hash.
func Verify(plaintext, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}
