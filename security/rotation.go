package security

import (
	"fmt"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// KeyRotationWindow gates when a retired key may still decrypt.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

// Rotate decrypts encodedOld under oldKey and re-encrypts it under newKey.
// It touches no shared state.
func Rotate(c *TokenCipher, encodedOld string, oldKey, newKey MasterKey) (string, error) {
	if c == nil {
		c = NewTokenCipher()
	}
	if newKey.IsZero() {
		return "", core.NewInvalidConfigurationError("security: rotation target key is required")
	}
	plaintext, err := c.Decrypt(oldKey, encodedOld)
	if err != nil {
		return "", err
	}
	return c.Encrypt(newKey, plaintext)
}

// Rotation re-encrypts stored credentials from any key in a keyring onto a
// single target key. It satisfies core.KeyRotator.
type Rotation struct {
	vault  *Vault
	target MasterKey
}

func NewRotation(vault *Vault, target MasterKey) (*Rotation, error) {
	if vault == nil {
		return nil, fmt.Errorf("security: rotation vault is required")
	}
	if target.IsZero() {
		return nil, core.NewInvalidConfigurationError("security: rotation target key is required")
	}
	return &Rotation{vault: vault, target: target}, nil
}

func (r *Rotation) Rotate(encoded string) (string, error) {
	if r == nil || r.vault == nil {
		return "", fmt.Errorf("security: rotation is not configured")
	}
	return r.vault.Rotate(encoded, r.target)
}

func (r *Rotation) TargetKeyID() string {
	if r == nil {
		return ""
	}
	return r.target.ID()
}

var _ core.KeyRotator = (*Rotation)(nil)
