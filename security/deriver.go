package security

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	PBKDF2Iterations = 100000
	DerivedKeySize   = 32
	SaltSize         = 32
)

// KeyDeriver turns the master key and a per-record salt into an AES key.
type KeyDeriver interface {
	DeriveKey(master MasterKey, salt []byte) ([]byte, error)
}

// DeriveKey runs PBKDF2-HMAC-SHA256 with 100000 iterations.
func DeriveKey(master MasterKey, salt []byte) ([]byte, error) {
	if master.IsZero() {
		return nil, fmt.Errorf("security: master key is not loaded")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("security: salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return pbkdf2.Key(master.bytes[:], salt, PBKDF2Iterations, DerivedKeySize, sha256.New), nil
}

type PBKDF2Deriver struct{}

func (PBKDF2Deriver) DeriveKey(master MasterKey, salt []byte) ([]byte, error) {
	return DeriveKey(master, salt)
}

var _ KeyDeriver = PBKDF2Deriver{}
