package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	PKCEMethodS256 = "S256"

	pkceVerifierBytes     = 32
	pkceMinVerifierLength = 43
	pkceMaxVerifierLength = 128
)

type PKCEChallenge struct {
	CodeVerifier  string
	CodeChallenge string
	Method        string
}

func GeneratePKCE() (PKCEChallenge, error) {
	raw := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(raw); err != nil {
		return PKCEChallenge{}, fmt.Errorf("core: generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return PKCEChallenge{
		CodeVerifier:  verifier,
		CodeChallenge: S256Challenge(verifier),
		Method:        PKCEMethodS256,
	}, nil
}

func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE reports whether challenge was derived from verifier. Mismatches
// return false; only malformed input returns an error.
func VerifyPKCE(verifier, challenge string) (bool, error) {
	if err := validateVerifier(verifier); err != nil {
		return false, err
	}
	expected, err := base64.RawURLEncoding.DecodeString(challenge)
	if err != nil {
		return false, fmt.Errorf("core: malformed pkce challenge: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return subtle.ConstantTimeCompare(sum[:], expected) == 1, nil
}

// validateVerifier enforces RFC 7636 length and unreserved charset.
func validateVerifier(verifier string) error {
	if len(verifier) < pkceMinVerifierLength || len(verifier) > pkceMaxVerifierLength {
		return fmt.Errorf("core: malformed pkce verifier: length %d outside %d-%d",
			len(verifier), pkceMinVerifierLength, pkceMaxVerifierLength)
	}
	for i := 0; i < len(verifier); i++ {
		c := verifier[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return fmt.Errorf("core: malformed pkce verifier: invalid character at %d", i)
		}
	}
	return nil
}
