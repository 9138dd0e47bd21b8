package google

import (
	"net/http"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"golang.org/x/oauth2"
)

const (
	ProviderID = "google"
	AuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL   = "https://oauth2.googleapis.com/token"
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
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		DefaultScopes: []string{
			"openid",
			"email",
			"https://www.googleapis.com/auth/calendar",
		},
	}
}

// New builds the Google Workspace provider. Google only issues a refresh
// token with access_type=offline, and only on the first consent unless
// prompt=consent forces it again.
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
		ID:            ProviderID,
		AuthURL:       cfg.AuthURL,
		TokenURL:      cfg.TokenURL,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		DefaultScopes: cfg.DefaultScopes,
		AuthOptions: []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.ApprovalForce,
		},
		TokenTTL:            time.Hour,
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		RetryDelay:          cfg.RetryDelay,
		HTTPClient:          cfg.HTTPClient,
	})
}
