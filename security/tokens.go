package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

const defaultRandomTokenBytes = 32

// HashToken returns the hex SHA-256 of value for non-reversible comparisons.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomToken returns n random bytes hex encoded; n <= 0 means 32.
func GenerateRandomToken(n int) (string, error) {
	if n <= 0 {
		n = defaultRandomTokenBytes
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("security: random token generation failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
