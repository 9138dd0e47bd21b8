package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	MasterKeyHexLength = 64

	defaultTokenRequestTimeout = 15 * time.Second
	defaultRetryDelay          = 500 * time.Millisecond
	minTokenRequestTimeout     = 10 * time.Second
	maxTokenRequestTimeout     = 15 * time.Second
)

type PreviousKeyConfig struct {
	KeyID    string    `koanf:"key_id" mapstructure:"key_id"`
	Key      string    `koanf:"key" mapstructure:"key"`
	NotAfter time.Time `koanf:"not_after" mapstructure:"not_after"`
}

type EncryptionConfig struct {
	Key              string              `koanf:"key" mapstructure:"key"`
	KeyID            string              `koanf:"key_id" mapstructure:"key_id"`
	PreviousKeys     []PreviousKeyConfig `koanf:"previous_keys" mapstructure:"previous_keys"`
	CacheDerivedKeys bool                `koanf:"cache_derived_keys" mapstructure:"cache_derived_keys"`
}

type OAuthConfig struct {
	SessionTTL          time.Duration `koanf:"session_ttl" mapstructure:"session_ttl"`
	TokenRequestTimeout time.Duration `koanf:"token_request_timeout" mapstructure:"token_request_timeout"`
	RetryDelay          time.Duration `koanf:"retry_delay" mapstructure:"retry_delay"`
}

type ProviderConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	AuthURL      string   `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL     string   `koanf:"token_url" mapstructure:"token_url"`
	Tenant       string   `koanf:"tenant" mapstructure:"tenant"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type Config struct {
	ServiceName string                    `koanf:"service_name" mapstructure:"service_name"`
	Encryption  EncryptionConfig          `koanf:"encryption" mapstructure:"encryption"`
	OAuth       OAuthConfig               `koanf:"oauth" mapstructure:"oauth"`
	Providers   map[string]ProviderConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Encryption: EncryptionConfig{
			KeyID: DefaultEncryptionKeyID,
		},
		OAuth: OAuthConfig{
			SessionTTL:          DefaultSessionTTL,
			TokenRequestTimeout: defaultTokenRequestTimeout,
			RetryDelay:          defaultRetryDelay,
		},
		Providers: map[string]ProviderConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if err := ValidateMasterKeyHex(c.Encryption.Key); err != nil {
		return fmt.Errorf("core: encryption.key: %w", err)
	}
	if strings.TrimSpace(c.Encryption.KeyID) == "" {
		return fmt.Errorf("core: encryption.key_id is required")
	}
	for i, previous := range c.Encryption.PreviousKeys {
		if strings.TrimSpace(previous.KeyID) == "" {
			return fmt.Errorf("core: encryption.previous_keys[%d].key_id is required", i)
		}
		if strings.EqualFold(strings.TrimSpace(previous.KeyID), strings.TrimSpace(c.Encryption.KeyID)) {
			return fmt.Errorf("core: encryption.previous_keys[%d] reuses the active key id", i)
		}
		if err := ValidateMasterKeyHex(previous.Key); err != nil {
			return fmt.Errorf("core: encryption.previous_keys[%d].key: %w", i, err)
		}
	}
	if c.OAuth.SessionTTL < 0 {
		return fmt.Errorf("core: oauth.session_ttl must not be negative")
	}
	// zero falls back to the default
	if timeout := c.OAuth.TokenRequestTimeout; timeout != 0 && (timeout < minTokenRequestTimeout || timeout > maxTokenRequestTimeout) {
		return fmt.Errorf("core: oauth.token_request_timeout must be between %s and %s", minTokenRequestTimeout, maxTokenRequestTimeout)
	}
	if c.OAuth.RetryDelay < 0 {
		return fmt.Errorf("core: oauth.retry_delay must not be negative")
	}
	for id, provider := range c.Providers {
		if strings.TrimSpace(provider.ClientID) == "" {
			return fmt.Errorf("core: providers.%s.client_id is required", id)
		}
	}
	return nil
}

// ValidateMasterKeyHex checks the 64 hex character master key encoding
// without echoing the value.
func ValidateMasterKeyHex(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("master key is required")
	}
	if len(value) != MasterKeyHexLength {
		return fmt.Errorf("master key must be %d hex characters, got %d", MasterKeyHexLength, len(value))
	}
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("master key must be hex encoded")
	}
	return nil
}

func (c OAuthConfig) withDefaults() OAuthConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.TokenRequestTimeout <= 0 {
		c.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}
