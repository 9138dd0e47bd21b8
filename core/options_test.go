package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
	err error
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, p.err
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := newTestService(nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorFactory == nil || deps.ErrorMapper == nil {
		t.Fatalf("expected default error factory and mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and options resolver")
	}
	if _, ok := deps.SessionStore.(*MemorySessionStore); !ok {
		t.Fatalf("expected memory session store fallback, got %T", deps.SessionStore)
	}
	if _, ok := deps.TokenSetStore.(*MemoryTokenSetStore); !ok {
		t.Fatalf("expected memory token set store fallback, got %T", deps.TokenSetStore)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "integrations" {
		t.Fatalf("expected default service_name=integrations, got %q", cfg.ServiceName)
	}
	if cfg.OAuth.SessionTTL != DefaultSessionTTL {
		t.Fatalf("expected default session ttl, got %s", cfg.OAuth.SessionTTL)
	}
	if cfg.OAuth.TokenRequestTimeout < 10*time.Second || cfg.OAuth.TokenRequestTimeout > 15*time.Second {
		t.Fatalf("expected token request timeout within 10-15s, got %s", cfg.OAuth.TokenRequestTimeout)
	}
}

func TestNewService_RequiresTokenVault(t *testing.T) {
	_, err := NewService(testConfig())
	if !IsKind(err, KindInvalidConfiguration) {
		t.Fatalf("expected invalid configuration without a vault, got %v", err)
	}
}

func TestNewService_MissingMasterKey(t *testing.T) {
	_, err := NewService(DefaultConfig(), WithTokenVault(newTestVault("v1")))
	if !IsKind(err, KindInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for missing key, got %v", err)
	}
}

func TestNewService_MalformedMasterKeyNotEchoed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encryption.Key = "zz" + testMasterKeyHex[2:]
	_, err := NewService(cfg, WithTokenVault(newTestVault("v1")))
	if !IsKind(err, KindInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for malformed key, got %v", err)
	}
	if strings.Contains(err.Error(), cfg.Encryption.Key) {
		t.Fatalf("expected error not to echo the key, got %q", err.Error())
	}
}

func TestNewService_ConfigProviderFailure(t *testing.T) {
	_, err := NewService(testConfig(),
		WithTokenVault(newTestVault("v1")),
		WithConfigProvider(&fixedConfigProvider{err: errors.New("config source unavailable")}),
	)
	if !IsKind(err, KindInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := newCaptureLogger()
	customProvider := stubLoggerProvider{logger: customLogger}
	customFactory := func(message string, category ...goerrors.Category) *goerrors.Error {
		return goerrors.New("custom:"+message, category...)
	}
	customMapper := func(err error) *goerrors.Error {
		return goerrors.New("mapped", goerrors.CategoryOperation)
	}
	persistenceClient := &struct{ Name string }{Name: "persistence"}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	resolved := testConfig()
	resolved.ServiceName = "resolved"
	optionsResolver := &fixedOptionsResolver{cfg: resolved}
	sessions := NewMemorySessionStore()
	tokens := NewMemoryTokenSetStore()
	rotator := testRotator{from: newTestVault("v1"), to: newTestVault("v2")}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorFactory(customFactory),
		WithErrorMapper(customMapper),
		WithPersistenceClient(persistenceClient),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithSessionStore(sessions),
		WithTokenSetStore(tokens),
		WithTokenVault(newTestVault("v1")),
		WithKeyRotator(rotator),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolvedLogger := deps.LoggerProvider.GetLogger("integrations.override"); resolvedLogger != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.PersistenceClient != persistenceClient {
		t.Fatalf("expected custom persistence client override")
	}
	if deps.ConfigProvider != configProvider || deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom config provider and options resolver")
	}
	if deps.SessionStore != sessions || deps.TokenSetStore != tokens {
		t.Fatalf("expected injected stores to be used")
	}
	if deps.KeyRotator == nil || deps.KeyRotator.TargetKeyID() != "v2" {
		t.Fatalf("expected injected key rotator")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if mapped := deps.ErrorMapper(errors.New("boom")); mapped == nil || mapped.Message != "mapped" {
		t.Fatalf("expected custom error mapper, got %#v", mapped)
	}
}

type stubStoreFactory struct {
	sessions SessionStore
	tokens   TokenSetStore
	client   any
}

func (f *stubStoreFactory) BuildStores(client any) (StoreProvider, error) {
	f.client = client
	return f, nil
}

func (f *stubStoreFactory) SessionStore() SessionStore   { return f.sessions }
func (f *stubStoreFactory) TokenSetStore() TokenSetStore { return f.tokens }

func TestNewService_RepositoryFactoryBuildsStores(t *testing.T) {
	factory := &stubStoreFactory{sessions: NewMemorySessionStore(), tokens: NewMemoryTokenSetStore()}
	client := &struct{}{}
	svc, err := newTestService(nil, WithPersistenceClient(client), WithRepositoryFactory(factory))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if factory.client != client {
		t.Fatalf("expected persistence client to reach the store factory")
	}
	deps := svc.Dependencies()
	if deps.SessionStore != factory.sessions || deps.TokenSetStore != factory.tokens {
		t.Fatalf("expected stores built by the repository factory")
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"encryption": map[string]any{
			"key":    testMasterKeyHex,
			"key_id": "v3",
		},
		"oauth": map[string]any{
			"token_request_timeout": 12 * time.Second,
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"},
		WithConfigProvider(provider),
		WithTokenVault(newTestVault("v3")),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.Encryption.KeyID != "v3" {
		t.Fatalf("expected config layer key id, got %q", cfg.Encryption.KeyID)
	}
	if cfg.OAuth.TokenRequestTimeout != 12*time.Second {
		t.Fatalf("expected config layer timeout, got %s", cfg.OAuth.TokenRequestTimeout)
	}
	if cfg.OAuth.SessionTTL != DefaultSessionTTL {
		t.Fatalf("expected default session ttl to survive layering, got %s", cfg.OAuth.SessionTTL)
	}
}

func TestEnvConfigLoader_ReadsKeyAndProviderCredentials(t *testing.T) {
	loader := EnvConfigLoader{
		Providers: []string{"slack", "Microsoft", "google"},
		Getenv: envMap(map[string]string{
			EnvEncryptionKey:          testMasterKeyHex,
			EnvEncryptionKey + "_ID":  "v7",
			"SLACK_CLIENT_ID":         "slack-client",
			"SLACK_CLIENT_SECRET":     "slack-secret",
			"MICROSOFT_CLIENT_ID":     "ms-client",
			"MICROSOFT_CLIENT_SECRET": "ms-secret",
			"MICROSOFT_TENANT_ID":     "contoso",
		}),
	}

	cfg, err := ResolveConfig(context.Background(), Config{}, NewCfgxConfigProvider(loader), nil)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Encryption.Key != testMasterKeyHex || cfg.Encryption.KeyID != "v7" {
		t.Fatalf("expected encryption settings from env, got %#v", cfg.Encryption)
	}
	slack, ok := cfg.Providers["slack"]
	if !ok || slack.ClientID != "slack-client" || slack.ClientSecret != "slack-secret" {
		t.Fatalf("expected slack credentials from env, got %#v", cfg.Providers)
	}
	microsoft := cfg.Providers["microsoft"]
	if microsoft.Tenant != "contoso" {
		t.Fatalf("expected microsoft tenant from env, got %#v", microsoft)
	}
	if _, ok := cfg.Providers["google"]; ok {
		t.Fatalf("expected provider without client id to be skipped")
	}
}

func TestEnvConfigLoader_MissingKeyFailsResolution(t *testing.T) {
	loader := EnvConfigLoader{Getenv: envMap(map[string]string{})}
	_, err := ResolveConfig(context.Background(), Config{}, NewCfgxConfigProvider(loader), nil)
	if !IsKind(err, KindInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for missing env key, got %v", err)
	}
}
