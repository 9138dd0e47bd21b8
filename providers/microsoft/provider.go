package microsoft

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"golang.org/x/oauth2"
)

const (
	ProviderID    = "microsoft"
	DefaultTenant = "common"

	authURLTemplate  = "https://login.microsoftonline.com/%s/oauth2/v2.0/authorize"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
)

type Config struct {
	ClientID            string
	ClientSecret        string
	Tenant              string
	AuthURL             string
	TokenURL            string
	DefaultScopes       []string
	TokenRequestTimeout time.Duration
	RetryDelay          time.Duration
	HTTPClient          *http.Client
}

func DefaultConfig() Config {
	return Config{
		Tenant: DefaultTenant,
		DefaultScopes: []string{
			"offline_access",
			"User.Read",
			"Calendars.ReadWrite",
			"Mail.Send",
			"Files.ReadWrite",
		},
	}
}

func AuthURL(tenant string) string {
	return fmt.Sprintf(authURLTemplate, normalizeTenant(tenant))
}

func TokenURL(tenant string) string {
	return fmt.Sprintf(tokenURLTemplate, normalizeTenant(tenant))
}

// New builds the Microsoft identity platform provider for a tenant. The
// offline_access scope is what makes Azure AD return a refresh token.
func New(cfg Config) (core.Provider, error) {
	defaults := DefaultConfig()
	cfg.Tenant = normalizeTenant(cfg.Tenant)
	if cfg.AuthURL == "" {
		cfg.AuthURL = AuthURL(cfg.Tenant)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = TokenURL(cfg.Tenant)
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
			oauth2.SetAuthURLParam("response_mode", "query"),
		},
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		RetryDelay:          cfg.RetryDelay,
		HTTPClient:          cfg.HTTPClient,
	})
}

func normalizeTenant(tenant string) string {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}
