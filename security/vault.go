package security

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"
)

const defaultBatchConcurrency = 4

type VaultOption func(*Vault)

// Vault encrypts under the keyring's active key and decrypts with any key
// the keyring still accepts. It satisfies core.TokenVault.
type Vault struct {
	cipher      *TokenCipher
	keyring     *Keyring
	logger      core.Logger
	concurrency int
}

func WithVaultCipher(cipher *TokenCipher) VaultOption {
	return func(v *Vault) {
		if cipher != nil {
			v.cipher = cipher
		}
	}
}

func WithVaultLogger(logger core.Logger) VaultOption {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithBatchConcurrency bounds the parallel batch helpers.
func WithBatchConcurrency(n int) VaultOption {
	return func(v *Vault) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

func NewVault(keyring *Keyring, opts ...VaultOption) (*Vault, error) {
	if keyring == nil {
		return nil, core.NewInvalidConfigurationError("security: keyring is required")
	}
	vault := &Vault{keyring: keyring, concurrency: defaultBatchConcurrency}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(vault)
	}
	vault.logger = glog.Ensure(vault.logger)
	if vault.cipher == nil {
		vault.cipher = NewTokenCipher(WithCipherLogger(vault.logger))
	}
	return vault, nil
}

func (v *Vault) KeyID() string {
	if v == nil {
		return ""
	}
	return v.keyring.KeyID()
}

func (v *Vault) Keyring() *Keyring {
	if v == nil {
		return nil
	}
	return v.keyring
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("security: vault is nil")
	}
	return v.cipher.Encrypt(v.keyring.Active(), plaintext)
}

// Decrypt tries the active key, then each previous key still inside its
// window. Any failure is the generic DecryptionFailed error.
func (v *Vault) Decrypt(encoded string) (string, error) {
	if v == nil {
		return "", core.NewDecryptionFailedError()
	}
	if _, err := decodeEnvelope(encoded); err != nil {
		v.logger.Error("token decryption failed", "cause", err.Error())
		return "", core.NewDecryptionFailedError()
	}
	keys := v.keyring.DecryptionKeys()
	attempted := make([]string, 0, len(keys))
	var lastErr error
	for i, key := range keys {
		attempted = append(attempted, key.ID())
		plaintext, err := v.cipher.open(key, encoded)
		if err == nil {
			if i > 0 {
				v.keyring.emit("fallback_succeeded", key.ID(), attempted, lastErr)
			}
			return plaintext, nil
		}
		lastErr = err
	}
	v.keyring.emit("failed", "", attempted, lastErr)
	v.logger.Error("token decryption failed", "attempted_key_ids", attempted, "cause", errorString(lastErr))
	return "", core.NewDecryptionFailedError()
}

// Rotate decrypts with the keyring and re-encrypts under newKey.
func (v *Vault) Rotate(encoded string, newKey MasterKey) (string, error) {
	if v == nil {
		return "", fmt.Errorf("security: vault is nil")
	}
	if newKey.IsZero() {
		return "", core.NewInvalidConfigurationError("security: rotation target key is required")
	}
	plaintext, err := v.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	return v.cipher.Encrypt(newKey, plaintext)
}

// EncryptBatch encrypts each non-empty value, keeping the field names.
func (v *Vault) EncryptBatch(values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for name, value := range values {
		if value == "" {
			continue
		}
		encoded, err := v.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("security: encrypt %s: %w", name, err)
		}
		out[name] = encoded
	}
	return out, nil
}

func (v *Vault) DecryptBatch(values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for name, value := range values {
		if value == "" {
			continue
		}
		plaintext, err := v.Decrypt(value)
		if err != nil {
			return nil, batchFieldError(name, err)
		}
		out[name] = plaintext
	}
	return out, nil
}

func (v *Vault) EncryptBatchParallel(ctx context.Context, values map[string]string) (map[string]string, error) {
	return v.parallel(ctx, values, func(name, value string) (string, error) {
		encoded, err := v.Encrypt(value)
		if err != nil {
			return "", fmt.Errorf("security: encrypt %s: %w", name, err)
		}
		return encoded, nil
	})
}

func (v *Vault) DecryptBatchParallel(ctx context.Context, values map[string]string) (map[string]string, error) {
	return v.parallel(ctx, values, func(name, value string) (string, error) {
		plaintext, err := v.Decrypt(value)
		if err != nil {
			return "", batchFieldError(name, err)
		}
		return plaintext, nil
	})
}

func (v *Vault) parallel(ctx context.Context, values map[string]string, apply func(name, value string) (string, error)) (map[string]string, error) {
	if v == nil {
		return nil, fmt.Errorf("security: vault is nil")
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(v.concurrency)

	var mu sync.Mutex
	out := make(map[string]string, len(values))
	for name, value := range values {
		if value == "" {
			continue
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			result, err := apply(name, value)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func batchFieldError(name string, err error) error {
	if _, ok := core.KindOf(err); !ok {
		return err
	}
	return core.NewDecryptionFailedError().WithMetadata(map[string]any{"field": name})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ core.TokenVault = (*Vault)(nil)
