package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	TokenKeyLength = 32 // 256 bits
)

// HashCredential returns the hex SHA-256 of a credential. Sessions store this
// instead of the credential itself.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns 32 random bytes as lowercase hex
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashResetCode hashes a security reset code for configuration
func HashResetCode(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("reset code cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash reset code: %w", err)
	}
	return string(hashed), nil
}

// CompareResetCode checks a reset code against its bcrypt hash
func CompareResetCode(hashed, code string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(code))
}
