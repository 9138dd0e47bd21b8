package integrations

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/google"
	"github.com/goliatone/go-integrations/providers/microsoft"
	"github.com/goliatone/go-integrations/providers/slack"
)

// ProviderBuilder turns one entry of the providers config map into a
// provider.
type ProviderBuilder func(id string, cfg ProviderConfig, oauth OAuthConfig, client *http.Client) (core.Provider, error)

func SlackProvider(cfg slack.Config) (core.Provider, error) {
	return slack.New(cfg)
}

func GoogleProvider(cfg google.Config) (core.Provider, error) {
	return google.New(cfg)
}

func MicrosoftProvider(cfg microsoft.Config) (core.Provider, error) {
	return microsoft.New(cfg)
}

func builtinProviderBuilders() map[string]ProviderBuilder {
	return map[string]ProviderBuilder{
		slack.ProviderID: func(_ string, cfg ProviderConfig, oauth OAuthConfig, client *http.Client) (core.Provider, error) {
			return SlackProvider(slack.Config{
				ClientID:            cfg.ClientID,
				ClientSecret:        cfg.ClientSecret,
				AuthURL:             cfg.AuthURL,
				TokenURL:            cfg.TokenURL,
				DefaultScopes:       cfg.Scopes,
				TokenRequestTimeout: oauth.TokenRequestTimeout,
				RetryDelay:          oauth.RetryDelay,
				HTTPClient:          client,
			})
		},
		google.ProviderID: func(_ string, cfg ProviderConfig, oauth OAuthConfig, client *http.Client) (core.Provider, error) {
			return GoogleProvider(google.Config{
				ClientID:            cfg.ClientID,
				ClientSecret:        cfg.ClientSecret,
				AuthURL:             cfg.AuthURL,
				TokenURL:            cfg.TokenURL,
				DefaultScopes:       cfg.Scopes,
				TokenRequestTimeout: oauth.TokenRequestTimeout,
				RetryDelay:          oauth.RetryDelay,
				HTTPClient:          client,
			})
		},
		microsoft.ProviderID: func(_ string, cfg ProviderConfig, oauth OAuthConfig, client *http.Client) (core.Provider, error) {
			return MicrosoftProvider(microsoft.Config{
				ClientID:            cfg.ClientID,
				ClientSecret:        cfg.ClientSecret,
				Tenant:              cfg.Tenant,
				AuthURL:             cfg.AuthURL,
				TokenURL:            cfg.TokenURL,
				DefaultScopes:       cfg.Scopes,
				TokenRequestTimeout: oauth.TokenRequestTimeout,
				RetryDelay:          oauth.RetryDelay,
				HTTPClient:          client,
			})
		},
	}
}

// GenericProvider builds a plain authorization code provider for ids with no
// preset. Both endpoints must be configured.
func GenericProvider(id string, cfg ProviderConfig, oauth OAuthConfig, client *http.Client) (core.Provider, error) {
	if strings.TrimSpace(cfg.AuthURL) == "" || strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("integrations: provider %q needs auth_url and token_url", id)
	}
	return providers.NewOAuth2Provider(providers.OAuth2Config{
		ID:                  id,
		AuthURL:             cfg.AuthURL,
		TokenURL:            cfg.TokenURL,
		ClientID:            cfg.ClientID,
		ClientSecret:        cfg.ClientSecret,
		DefaultScopes:       cfg.Scopes,
		TokenRequestTimeout: oauth.TokenRequestTimeout,
		RetryDelay:          oauth.RetryDelay,
		HTTPClient:          client,
	})
}

// ProvidersFromConfig builds a provider for every configured id, sorted by
// id. Builders registered on hooks win over the built in presets.
func ProvidersFromConfig(cfg Config, client *http.Client, hooks *ExtensionHooks) ([]core.Provider, error) {
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	builtins := builtinProviderBuilders()
	out := make([]core.Provider, 0, len(ids))
	for _, rawID := range ids {
		id := strings.ToLower(strings.TrimSpace(rawID))
		if id == "" {
			return nil, fmt.Errorf("integrations: provider id is required")
		}
		builder, ok := hooks.ProviderBuilder(id)
		if !ok {
			builder, ok = builtins[id]
		}
		if !ok {
			builder = GenericProvider
		}
		provider, err := builder(id, cfg.Providers[rawID], cfg.OAuth, client)
		if err != nil {
			return nil, fmt.Errorf("integrations: build provider %q: %w", id, err)
		}
		out = append(out, provider)
	}
	return out, nil
}

// NewRegistryFromConfig registers the configured providers and then any
// provider packs from hooks.
func NewRegistryFromConfig(cfg Config, client *http.Client, hooks *ExtensionHooks) (*core.ProviderRegistry, error) {
	configured, err := ProvidersFromConfig(cfg, client, hooks)
	if err != nil {
		return nil, err
	}
	registry := core.NewProviderRegistry()
	for _, provider := range configured {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	if err := hooks.ApplyProviderPacks(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
