package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

const testMasterKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type testProvider struct {
	id string

	mu            sync.Mutex
	exchangeCalls int
	refreshCalls  int
	lastCode      string
	lastVerifier  string
	lastRefresh   string

	exchangeErr  error
	refreshErr   error
	tokens       ProviderTokens
	refreshed    ProviderTokens
	onExchange   func()
	onRefresh    func()
	defaultScope []string
}

func (p *testProvider) ID() string { return p.id }

func (p *testProvider) DefaultScopes() []string {
	if len(p.defaultScope) > 0 {
		return append([]string(nil), p.defaultScope...)
	}
	return []string{"channels:read"}
}

func (p *testProvider) AuthorizationURL(session PKCESession, scopes []string) (string, error) {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", "client_"+p.id)
	query.Set("redirect_uri", session.RedirectURI)
	query.Set("state", session.State)
	query.Set("code_challenge", session.CodeChallenge)
	query.Set("code_challenge_method", session.ChallengeMethod)
	query.Set("scope", strings.Join(scopes, " "))
	return "https://" + p.id + ".example/authorize?" + query.Encode(), nil
}

func (p *testProvider) ExchangeCode(_ context.Context, code string, session PKCESession) (ProviderTokens, error) {
	p.mu.Lock()
	p.exchangeCalls++
	p.lastCode = code
	p.lastVerifier = session.CodeVerifier
	hook := p.onExchange
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if p.exchangeErr != nil {
		return ProviderTokens{}, p.exchangeErr
	}
	if p.tokens.AccessToken != "" {
		return p.tokens, nil
	}
	expiresAt := time.Now().UTC().Add(time.Hour)
	return ProviderTokens{
		AccessToken:  "access_" + code,
		RefreshToken: "refresh_" + code,
		TokenType:    "Bearer",
		Scopes:       []string{"channels:read"},
		ExpiresAt:    &expiresAt,
	}, nil
}

func (p *testProvider) Refresh(_ context.Context, refreshToken string) (ProviderTokens, error) {
	p.mu.Lock()
	p.refreshCalls++
	p.lastRefresh = refreshToken
	hook := p.onRefresh
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if p.refreshErr != nil {
		return ProviderTokens{}, p.refreshErr
	}
	if p.refreshed.AccessToken != "" {
		return p.refreshed, nil
	}
	expiresAt := time.Now().UTC().Add(time.Hour)
	return ProviderTokens{AccessToken: "access_refreshed", TokenType: "Bearer", ExpiresAt: &expiresAt}, nil
}

// testVault is a reversible stand-in for the AES vault. It tags values with
// the key id so rotation is observable.
type testVault struct {
	keyID string
	known map[string]bool
}

func newTestVault(keyID string, readable ...string) *testVault {
	known := map[string]bool{keyID: true}
	for _, id := range readable {
		known[id] = true
	}
	return &testVault{keyID: keyID, known: known}
}

func (v *testVault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("test vault: cannot encrypt empty value")
	}
	return "enc:" + v.keyID + ":" + base64.RawURLEncoding.EncodeToString([]byte(plaintext)), nil
}

func (v *testVault) Decrypt(encoded string) (string, error) {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 || parts[0] != "enc" || !v.known[parts[1]] {
		return "", fmt.Errorf("test vault: unreadable value")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("test vault: decode: %w", err)
	}
	return string(decoded), nil
}

func (v *testVault) KeyID() string { return v.keyID }

type testRotator struct {
	from *testVault
	to   *testVault
	fail map[string]bool
}

func (r testRotator) Rotate(encoded string) (string, error) {
	plaintext, err := r.from.Decrypt(encoded)
	if err != nil {
		return "", NewDecryptionFailedError()
	}
	if r.fail[plaintext] {
		return "", NewDecryptionFailedError()
	}
	return r.to.Encrypt(plaintext)
}

func (r testRotator) TargetKeyID() string { return r.to.KeyID() }

// interleavedRotator runs during once, on the first Rotate call, to stand in
// for a request that lands while the sweep is sealing a record.
type interleavedRotator struct {
	testRotator
	once   sync.Once
	during func()
}

func (r *interleavedRotator) Rotate(encoded string) (string, error) {
	r.once.Do(r.during)
	return r.testRotator.Rotate(encoded)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Encryption.Key = testMasterKeyHex
	return cfg
}

func newTestService(provider *testProvider, opts ...Option) (*Service, error) {
	registry := NewProviderRegistry()
	if provider != nil {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	base := []Option{
		WithRegistry(registry),
		WithTokenVault(newTestVault(DefaultEncryptionKeyID)),
	}
	return NewService(testConfig(), append(base, opts...)...)
}

func stateFromURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return parsed.Query().Get("state"), nil
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return l.values, nil
}

type recordingDelivery struct {
	msg    *JobExecutionMessage
	acked  bool
	nacked bool
	nack   JobNackOptions
}

func (d *recordingDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *recordingDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *recordingDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.nacked = true
	d.nack = opts
	return nil
}

type recordingEnqueuer struct {
	messages []*JobExecutionMessage
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}
