package security

import (
	"strings"
	"testing"
)

const (
	testKeyHexA = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testKeyHexB = "1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100"
)

func mustMasterKey(t *testing.T, keyID, value string) MasterKey {
	t.Helper()
	key, err := ParseMasterKey(keyID, value)
	if err != nil {
		t.Fatalf("parse master key: %v", err)
	}
	return key
}

func mustVault(t *testing.T, active MasterKey, opts ...KeyringOption) *Vault {
	t.Helper()
	ring, err := NewKeyring(active, opts...)
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	vault, err := NewVault(ring)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return vault
}

// flipHexByte flips the low bit of the byte at index within the given
// envelope field.
func flipHexByte(t *testing.T, encoded string, field int, index int) string {
	t.Helper()
	parts := strings.Split(encoded, ":")
	if len(parts) != 5 {
		t.Fatalf("expected 5 envelope fields, got %d", len(parts))
	}
	raw := []byte(parts[field])
	pos := index*2 + 1
	if raw[pos] == '0' {
		raw[pos] = '1'
	} else {
		raw[pos] = '0'
	}
	parts[field] = string(raw)
	return strings.Join(parts, ":")
}
