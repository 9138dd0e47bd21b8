package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goliatone/go-integrations/core"
	"golang.org/x/oauth2"
)

const (
	DefaultTokenRequestTimeout = 15 * time.Second
	DefaultRetryDelay          = 500 * time.Millisecond

	// one initial attempt plus a single retry on transient network failures
	maxTokenAttempts = 2
)

type OAuth2Config struct {
	ID           string
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// ClientSecretInHeader sends client credentials with HTTP basic auth
	// instead of the form body.
	ClientSecretInHeader bool
	DefaultScopes        []string
	// AuthOptions are appended to every authorization URL, e.g. Google's
	// access_type=offline.
	AuthOptions         []oauth2.AuthCodeOption
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	RetryDelay          time.Duration
	HTTPClient          *http.Client
	Now                 func() time.Time
}

// OAuth2Provider runs the authorization code flow with PKCE against a
// single provider's endpoints.
type OAuth2Provider struct {
	cfg OAuth2Config
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	cfg.ID = strings.TrimSpace(strings.ToLower(cfg.ID))
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	if cfg.ID == "" {
		return nil, core.NewInvalidConfigurationError("providers: provider id is required")
	}
	if cfg.AuthURL == "" {
		return nil, core.NewInvalidConfigurationError(
			fmt.Sprintf("providers: auth url is required for provider %q", cfg.ID),
		)
	}
	if cfg.TokenURL == "" {
		return nil, core.NewInvalidConfigurationError(
			fmt.Sprintf("providers: token url is required for provider %q", cfg.ID),
		)
	}
	if cfg.ClientID == "" {
		return nil, core.NewInvalidConfigurationError(
			fmt.Sprintf("providers: client id is required for provider %q", cfg.ID),
		)
	}
	cfg.DefaultScopes = normalizeScopes(cfg.DefaultScopes)
	cfg.AuthOptions = append([]oauth2.AuthCodeOption(nil), cfg.AuthOptions...)
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = DefaultTokenRequestTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &OAuth2Provider{cfg: cfg}, nil
}

func (p *OAuth2Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.ID
}

func (p *OAuth2Provider) DefaultScopes() []string {
	if p == nil {
		return []string{}
	}
	return append([]string{}, p.cfg.DefaultScopes...)
}

func (p *OAuth2Provider) TokenRequestTimeout() time.Duration {
	if p == nil {
		return 0
	}
	return p.cfg.TokenRequestTimeout
}

// AuthorizationURL builds the consent redirect for the session. The
// challenge comes from the session; the verifier never leaves the server.
func (p *OAuth2Provider) AuthorizationURL(session core.PKCESession, scopes []string) (string, error) {
	if p == nil {
		return "", core.NewInvalidConfigurationError("providers: oauth2 provider is nil")
	}
	if strings.TrimSpace(session.State) == "" {
		return "", fmt.Errorf("providers: session state is required")
	}
	if strings.TrimSpace(session.CodeChallenge) == "" {
		return "", fmt.Errorf("providers: session code challenge is required")
	}
	method := strings.TrimSpace(session.ChallengeMethod)
	if method == "" {
		method = core.PKCEMethodS256
	}
	if method != core.PKCEMethodS256 {
		return "", fmt.Errorf("providers: unsupported code challenge method %q", method)
	}

	requested := normalizeScopes(scopes)
	if len(requested) == 0 {
		requested = p.DefaultScopes()
	}
	cfg := p.oauthConfig(session.RedirectURI, requested)
	opts := make([]oauth2.AuthCodeOption, 0, len(p.cfg.AuthOptions)+2)
	opts = append(opts,
		oauth2.SetAuthURLParam("code_challenge", session.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", method),
	)
	opts = append(opts, p.cfg.AuthOptions...)
	return cfg.AuthCodeURL(session.State, opts...), nil
}

func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code string, session core.PKCESession) (core.ProviderTokens, error) {
	if p == nil {
		return core.ProviderTokens{}, core.NewInvalidConfigurationError("providers: oauth2 provider is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.ProviderTokens{}, fmt.Errorf("providers: authorization code is required")
	}
	if strings.TrimSpace(session.CodeVerifier) == "" {
		return core.ProviderTokens{}, fmt.Errorf("providers: session code verifier is required")
	}

	cfg := p.oauthConfig(session.RedirectURI, session.Scopes)
	token, err := p.retrieve(ctx, func(attemptCtx context.Context) (*oauth2.Token, error) {
		return cfg.Exchange(attemptCtx, code, oauth2.VerifierOption(session.CodeVerifier))
	})
	if err != nil {
		return core.ProviderTokens{}, err
	}
	return p.tokensFrom(token, session.Scopes), nil
}

// Refresh trades a refresh token for a new access token. Providers that do
// not rotate refresh tokens get the prior one back.
func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (core.ProviderTokens, error) {
	if p == nil {
		return core.ProviderTokens{}, core.NewInvalidConfigurationError("providers: oauth2 provider is nil")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.ProviderTokens{}, fmt.Errorf("providers: refresh token is required")
	}

	cfg := p.oauthConfig("", nil)
	token, err := p.retrieve(ctx, func(attemptCtx context.Context) (*oauth2.Token, error) {
		return cfg.TokenSource(attemptCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	})
	if err != nil {
		return core.ProviderTokens{}, err
	}
	tokens := p.tokensFrom(token, nil)
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

func (p *OAuth2Provider) oauthConfig(redirectURI string, scopes []string) *oauth2.Config {
	style := oauth2.AuthStyleInParams
	if p.cfg.ClientSecretInHeader {
		style = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  strings.TrimSpace(redirectURI),
		Scopes:       append([]string(nil), scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.cfg.AuthURL,
			TokenURL:  p.cfg.TokenURL,
			AuthStyle: style,
		},
	}
}

// retrieve runs one token endpoint call under a per-attempt timeout and
// retries once when the failure is a transient network error.
func (p *OAuth2Provider) retrieve(
	ctx context.Context,
	fetch func(context.Context) (*oauth2.Token, error),
) (*oauth2.Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}

	operation := func() (*oauth2.Token, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.TokenRequestTimeout)
		defer cancel()
		token, err := fetch(attemptCtx)
		if err != nil {
			if ctx.Err() != nil || !IsTransientError(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if token == nil {
			return nil, backoff.Permanent(fmt.Errorf("providers: token endpoint returned no token"))
		}
		return token, nil
	}

	token, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.RetryDelay)),
		backoff.WithMaxTries(maxTokenAttempts),
	)
	if err != nil {
		return nil, p.classifyError(ctx, err)
	}
	return token, nil
}

func (p *OAuth2Provider) classifyError(ctx context.Context, err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		response := &core.ProviderResponseError{
			ErrorCode:        strings.TrimSpace(retrieveErr.ErrorCode),
			ErrorDescription: strings.TrimSpace(retrieveErr.ErrorDescription),
			Body:             append([]byte(nil), retrieveErr.Body...),
		}
		if retrieveErr.Response != nil {
			response.StatusCode = retrieveErr.Response.StatusCode
		}
		return core.NewExchangeFailedError(p.cfg.ID, response)
	}
	return core.NewExchangeFailedError(p.cfg.ID, fmt.Errorf("providers: token request failed: %w", err))
}

// IsTransientError reports whether a token endpoint failure happened below
// the OAuth layer: dial failures, resets, timeouts or truncated responses.
// Provider error responses are never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "read"
	}
	// x/oauth2 flattens body read failures into the message
	return strings.Contains(err.Error(), "unexpected EOF")
}

func (p *OAuth2Provider) tokensFrom(token *oauth2.Token, requested []string) core.ProviderTokens {
	tokens := core.ProviderTokens{
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		TokenType:    normalizeTokenType(token.TokenType),
		Scopes:       grantedScopes(token),
	}
	if len(tokens.Scopes) == 0 {
		tokens.Scopes = normalizeScopes(requested)
	}

	now := p.cfg.Now().UTC()
	switch {
	case token.ExpiresIn > 0:
		expiresAt := now.Add(time.Duration(token.ExpiresIn) * time.Second)
		tokens.ExpiresAt = &expiresAt
	case !token.Expiry.IsZero():
		expiresAt := token.Expiry.UTC()
		tokens.ExpiresAt = &expiresAt
	case p.cfg.TokenTTL > 0:
		expiresAt := now.Add(p.cfg.TokenTTL)
		tokens.ExpiresAt = &expiresAt
	}
	return tokens
}

func grantedScopes(token *oauth2.Token) []string {
	raw, ok := token.Extra("scope").(string)
	if !ok {
		return []string{}
	}
	return normalizeScopes(parseScopeList(raw))
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

// parseScopeList accepts space or comma separated scopes; Slack uses commas.
func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		values = append(values, normalized)
	}
	return values
}

var _ core.Provider = (*OAuth2Provider)(nil)
