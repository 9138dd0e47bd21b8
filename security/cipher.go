package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
)

type CipherOption func(*TokenCipher)

// TokenCipher seals tokens with AES-256-GCM under a key derived from the
// master key and a fresh salt. Keys are always passed in explicitly.
type TokenCipher struct {
	deriver KeyDeriver
	random  io.Reader
	logger  core.Logger
}

func WithKeyDeriver(deriver KeyDeriver) CipherOption {
	return func(c *TokenCipher) {
		if deriver != nil {
			c.deriver = deriver
		}
	}
}

func WithRandomSource(reader io.Reader) CipherOption {
	return func(c *TokenCipher) {
		if reader != nil {
			c.random = reader
		}
	}
}

func WithCipherLogger(logger core.Logger) CipherOption {
	return func(c *TokenCipher) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewTokenCipher(opts ...CipherOption) *TokenCipher {
	c := &TokenCipher{
		deriver: PBKDF2Deriver{},
		random:  rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	c.logger = glog.Ensure(c.logger)
	return c
}

// Encrypt returns v1:salt:nonce:tag:ciphertext. Every call draws a new salt
// and nonce, so equal plaintexts never produce equal output.
func (c *TokenCipher) Encrypt(key MasterKey, plaintext string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: token cipher is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: cannot encrypt empty value")
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return "", fmt.Errorf("security: salt generation failed: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}

	gcm, err := c.aead(key, salt)
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - TagSize
	return encodeEnvelope(envelope{
		Version:    EnvelopeVersion,
		Salt:       salt,
		Nonce:      nonce,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}), nil
}

// Decrypt fails closed: every failure is reported as DecryptionFailed and the
// cause is only logged.
func (c *TokenCipher) Decrypt(key MasterKey, encoded string) (string, error) {
	if c == nil {
		return "", core.NewDecryptionFailedError()
	}
	plaintext, err := c.open(key, encoded)
	if err != nil {
		c.logger.Debug("token decryption failed", "encryption_key_id", key.ID(), "cause", err.Error())
		return "", core.NewDecryptionFailedError()
	}
	return plaintext, nil
}

// open returns the detailed cause so callers trying several keys can report
// one generic failure at the end.
func (c *TokenCipher) open(key MasterKey, encoded string) (string, error) {
	env, err := decodeEnvelope(encoded)
	if err != nil {
		return "", err
	}
	gcm, err := c.aead(key, env.Salt)
	if err != nil {
		return "", err
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)
	plaintext, err := gcm.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("security: token decryption failed - invalid key or corrupted data")
	}
	return string(plaintext), nil
}

func (c *TokenCipher) aead(key MasterKey, salt []byte) (cipher.AEAD, error) {
	derived, err := c.deriver.DeriveKey(key, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}
