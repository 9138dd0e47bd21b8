package security

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	EnvelopeVersion = "v1"

	NonceSize = 16
	TagSize   = 16

	envelopeSeparator = ":"
	envelopeFields    = 5
)

// envelope is the decoded form of version:salt:nonce:tag:ciphertext. All
// binary fields are lower-case hex on the wire.
type envelope struct {
	Version    string
	Salt       []byte
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// EnvelopeMetadata describes a stored credential without decrypting it.
type EnvelopeMetadata struct {
	Version       string
	SaltSize      int
	NonceSize     int
	TagSize       int
	PayloadLength int
}

func ParseEnvelopeMetadata(encoded string) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(encoded)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{
		Version:       env.Version,
		SaltSize:      len(env.Salt),
		NonceSize:     len(env.Nonce),
		TagSize:       len(env.Tag),
		PayloadLength: len(env.Ciphertext),
	}, nil
}

// IsEnvelope reports whether value looks like an encrypted credential.
func IsEnvelope(value string) bool {
	_, err := decodeEnvelope(value)
	return err == nil
}

func encodeEnvelope(env envelope) string {
	return strings.Join([]string{
		env.Version,
		hex.EncodeToString(env.Salt),
		hex.EncodeToString(env.Nonce),
		hex.EncodeToString(env.Tag),
		hex.EncodeToString(env.Ciphertext),
	}, envelopeSeparator)
}

func decodeEnvelope(encoded string) (envelope, error) {
	if encoded == "" {
		return envelope{}, fmt.Errorf("security: cannot decrypt empty value")
	}
	parts := strings.Split(encoded, envelopeSeparator)
	if len(parts) != envelopeFields {
		return envelope{}, fmt.Errorf("security: invalid encrypted token format")
	}
	if parts[0] != EnvelopeVersion {
		return envelope{}, fmt.Errorf("security: unsupported encryption version: %s", parts[0])
	}

	env := envelope{Version: parts[0]}
	var err error
	if env.Salt, err = decodeEnvelopeField("salt", parts[1], SaltSize); err != nil {
		return envelope{}, err
	}
	if env.Nonce, err = decodeEnvelopeField("nonce", parts[2], NonceSize); err != nil {
		return envelope{}, err
	}
	if env.Tag, err = decodeEnvelopeField("auth tag", parts[3], TagSize); err != nil {
		return envelope{}, err
	}
	if env.Ciphertext, err = hex.DecodeString(parts[4]); err != nil {
		return envelope{}, fmt.Errorf("security: decode ciphertext: %w", err)
	}
	return env, nil
}

func decodeEnvelopeField(name, value string, size int) ([]byte, error) {
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("security: decode %s: %w", name, err)
	}
	if len(decoded) != size {
		return nil, fmt.Errorf("security: %s must be %d bytes, got %d", name, size, len(decoded))
	}
	return decoded, nil
}
