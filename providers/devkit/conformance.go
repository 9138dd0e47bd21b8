package devkit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// ValidateProviderConformance drives a provider through the authorization
// URL, code exchange and refresh against a fake token endpoint. The
// endpoint must reply with an access token and a refresh token to the
// first call.
func ValidateProviderConformance(ctx context.Context, provider core.Provider, endpoint *TokenEndpoint) error {
	if provider == nil {
		return fmt.Errorf("devkit: provider is required")
	}
	if endpoint == nil {
		return fmt.Errorf("devkit: token endpoint is required")
	}
	if strings.TrimSpace(provider.ID()) == "" {
		return fmt.Errorf("devkit: provider id is required")
	}
	if len(provider.DefaultScopes()) == 0 {
		return fmt.Errorf("devkit: provider %q has no default scopes", provider.ID())
	}

	session, err := core.NewPKCESession(provider.ID(), "https://app.example.test/integrations/callback", time.Minute)
	if err != nil {
		return err
	}
	session.Scopes = provider.DefaultScopes()

	rawURL, err := provider.AuthorizationURL(session, nil)
	if err != nil {
		return fmt.Errorf("devkit: authorization url: %w", err)
	}
	if err := validateAuthorizationURL(rawURL, session); err != nil {
		return err
	}

	before := len(endpoint.Requests())
	tokens, err := provider.ExchangeCode(ctx, "code_conformance", session)
	if err != nil {
		return fmt.Errorf("devkit: exchange code: %w", err)
	}
	if err := tokens.Validate(); err != nil {
		return err
	}
	requests := endpoint.Requests()
	if len(requests) != before+1 {
		return fmt.Errorf("devkit: expected one token request for exchange, got %d", len(requests)-before)
	}
	form := requests[len(requests)-1].Form
	expected := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "code_conformance",
		"code_verifier": session.CodeVerifier,
		"redirect_uri":  session.RedirectURI,
	}
	for key, value := range expected {
		if form.Get(key) != value {
			return fmt.Errorf("devkit: exchange form %s = %q, want %q", key, form.Get(key), value)
		}
	}

	if tokens.RefreshToken == "" {
		return nil
	}
	if _, err := provider.Refresh(ctx, tokens.RefreshToken); err != nil {
		return fmt.Errorf("devkit: refresh: %w", err)
	}
	requests = endpoint.Requests()
	form = requests[len(requests)-1].Form
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != tokens.RefreshToken {
		return fmt.Errorf("devkit: refresh form did not carry the refresh token grant")
	}
	return nil
}

func validateAuthorizationURL(rawURL string, session core.PKCESession) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("devkit: parse authorization url: %w", err)
	}
	query := parsed.Query()
	expected := map[string]string{
		"response_type":         "code",
		"state":                 session.State,
		"redirect_uri":          session.RedirectURI,
		"code_challenge":        session.CodeChallenge,
		"code_challenge_method": core.PKCEMethodS256,
	}
	for key, value := range expected {
		if query.Get(key) != value {
			return fmt.Errorf("devkit: authorization url %s = %q, want %q", key, query.Get(key), value)
		}
	}
	if strings.TrimSpace(query.Get("client_id")) == "" {
		return fmt.Errorf("devkit: authorization url is missing client_id")
	}
	if strings.TrimSpace(query.Get("scope")) == "" {
		return fmt.Errorf("devkit: authorization url is missing scope")
	}
	if query.Get("code_verifier") != "" {
		return fmt.Errorf("devkit: authorization url leaks the code verifier")
	}
	return nil
}
