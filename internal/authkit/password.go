package authkit

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a salted one-way hash from the plaintext password.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("password.hash: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
// Comparison is constant-time within bcrypt.
func CheckPassword(passwordHash string, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(plaintext)) == nil
}
