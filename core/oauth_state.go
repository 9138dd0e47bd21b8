package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const oauthStateBytes = 32

func GenerateState() (string, error) {
	raw := make([]byte, oauthStateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ValidateState compares in constant time and fails closed on empty input.
func ValidateState(received, stored string) bool {
	if received == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(stored)) == 1
}
