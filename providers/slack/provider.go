package slack

import (
	"net/http"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "slack"
	AuthURL    = "https://slack.com/oauth/v2/authorize"
	TokenURL   = "https://slack.com/api/oauth.v2.access"
)

type Config struct {
	ClientID            string
	ClientSecret        string
	AuthURL             string
	TokenURL            string
	DefaultScopes       []string
	TokenRequestTimeout time.Duration
	RetryDelay          time.Duration
	HTTPClient          *http.Client
}

func DefaultConfig() Config {
	return Config{
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		DefaultScopes: []string{"channels:read", "chat:write"},
	}
}

// New builds the Slack provider. Slack bot tokens do not expire unless
// token rotation is enabled on the app, so no TTL is assumed.
func New(cfg Config) (core.Provider, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if len(cfg.DefaultScopes) == 0 {
		cfg.DefaultScopes = defaults.DefaultScopes
	}
	return providers.NewOAuth2Provider(providers.OAuth2Config{
		ID:                  ProviderID,
		AuthURL:             cfg.AuthURL,
		TokenURL:            cfg.TokenURL,
		ClientID:            cfg.ClientID,
		ClientSecret:        cfg.ClientSecret,
		DefaultScopes:       cfg.DefaultScopes,
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		RetryDelay:          cfg.RetryDelay,
		HTTPClient:          cfg.HTTPClient,
	})
}
