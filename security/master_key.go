package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const MasterKeySize = 32

// MasterKey is the process-wide root secret. It is only ever used as PBKDF2
// input and never stored next to ciphertext.
type MasterKey struct {
	id    string
	bytes [MasterKeySize]byte
}

// ParseMasterKey decodes a 64 character hex key. Errors never echo the input.
func ParseMasterKey(keyID, value string) (MasterKey, error) {
	if err := core.ValidateMasterKeyHex(value); err != nil {
		return MasterKey{}, core.NewInvalidConfigurationError("security: " + err.Error())
	}
	decoded, _ := hex.DecodeString(strings.TrimSpace(value))
	key := MasterKey{id: normalizeKeyID(keyID)}
	copy(key.bytes[:], decoded)
	return key, nil
}

// MasterKeyFromEnv loads the key from INTEGRATION_ENCRYPTION_KEY.
func MasterKeyFromEnv(keyID string) (MasterKey, error) {
	return ParseMasterKey(keyID, os.Getenv(core.EnvEncryptionKey))
}

func NewMasterKey(keyID string, material []byte) (MasterKey, error) {
	if len(material) != MasterKeySize {
		return MasterKey{}, core.NewInvalidConfigurationError(
			fmt.Sprintf("security: master key must be %d bytes, got %d", MasterKeySize, len(material)),
		)
	}
	key := MasterKey{id: normalizeKeyID(keyID)}
	copy(key.bytes[:], material)
	return key, nil
}

func (k MasterKey) ID() string {
	return k.id
}

func (k MasterKey) IsZero() bool {
	return k.bytes == [MasterKeySize]byte{}
}

// Bytes returns a copy of the key material.
func (k MasterKey) Bytes() []byte {
	out := make([]byte, MasterKeySize)
	copy(out, k.bytes[:])
	return out
}

func (k MasterKey) String() string {
	return "MasterKey(" + k.id + ")"
}

// GenerateMasterKey returns 32 random bytes hex encoded, suitable for
// INTEGRATION_ENCRYPTION_KEY.
func GenerateMasterKey() (string, error) {
	buf := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("security: master key generation failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func IsValidMasterKey(value string) bool {
	return core.ValidateMasterKeyHex(value) == nil
}

func normalizeKeyID(keyID string) string {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return core.DefaultEncryptionKeyID
	}
	return keyID
}
