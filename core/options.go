package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

const EnvEncryptionKey = "INTEGRATION_ENCRYPTION_KEY"

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StoreProvider interface {
	SessionStore() SessionStore
	TokenSetStore() TokenSetStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	sessionStore      SessionStore
	tokenSetStore     TokenSetStore
	tokenVault        TokenVault
	registry          Registry
	keyRotator        KeyRotator
	credentialLocker  CredentialLocker
	jobEnqueuer       JobEnqueuer
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithSessionStore(store SessionStore) Option {
	return func(b *serviceBuilder) {
		b.sessionStore = store
	}
}

func WithTokenSetStore(store TokenSetStore) Option {
	return func(b *serviceBuilder) {
		b.tokenSetStore = store
	}
}

func WithTokenVault(vault TokenVault) Option {
	return func(b *serviceBuilder) {
		b.tokenVault = vault
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

// WithKeyRotator sets the rotator used by rotation jobs.
func WithKeyRotator(rotator KeyRotator) Option {
	return func(b *serviceBuilder) {
		b.keyRotator = rotator
	}
}

func WithCredentialLocker(locker CredentialLocker) Option {
	return func(b *serviceBuilder) {
		b.credentialLocker = locker
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("integrations", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewProviderRegistry(),
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// EnvConfigLoader reads the master key and per-provider client credentials
// from the process environment.
type EnvConfigLoader struct {
	// Providers lists provider ids whose <ID>_CLIENT_ID style variables are read.
	Providers []string
	Getenv    func(string) string
}

func NewEnvConfigLoader(providers ...string) EnvConfigLoader {
	return EnvConfigLoader{Providers: providers, Getenv: os.Getenv}
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	raw := map[string]any{}
	encryption := map[string]any{}
	if key := strings.TrimSpace(getenv(EnvEncryptionKey)); key != "" {
		encryption["key"] = key
	}
	if keyID := strings.TrimSpace(getenv(EnvEncryptionKey + "_ID")); keyID != "" {
		encryption["key_id"] = keyID
	}
	if len(encryption) > 0 {
		raw["encryption"] = encryption
	}

	providers := map[string]any{}
	for _, id := range l.Providers {
		id = strings.TrimSpace(strings.ToLower(id))
		if id == "" {
			continue
		}
		prefix := strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_"
		clientID := strings.TrimSpace(getenv(prefix + "CLIENT_ID"))
		if clientID == "" {
			continue
		}
		entry := map[string]any{
			"client_id":     clientID,
			"client_secret": strings.TrimSpace(getenv(prefix + "CLIENT_SECRET")),
		}
		if redirect := strings.TrimSpace(getenv(prefix + "REDIRECT_URI")); redirect != "" {
			entry["redirect_uri"] = redirect
		}
		if tenant := strings.TrimSpace(getenv(prefix + "TENANT_ID")); tenant != "" {
			entry["tenant"] = tenant
		}
		providers[id] = entry
	}
	if len(providers) > 0 {
		raw["providers"] = providers
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes raw values over defaults. Validation runs after all layers
// are merged by the OptionsResolver.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig runs the loader and resolver layers without building a service.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, NewInvalidConfigurationError(err.Error())
	}
	resolved, err := resolver.Resolve(defaults, loaded, runtime)
	if err != nil {
		return Config{}, NewInvalidConfigurationError(err.Error())
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	encryption := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Encryption.Key) != "" {
		encryption["key"] = cfg.Encryption.Key
	}
	if includeZero || strings.TrimSpace(cfg.Encryption.KeyID) != "" {
		encryption["key_id"] = cfg.Encryption.KeyID
	}
	if includeZero || len(cfg.Encryption.PreviousKeys) > 0 {
		previous := make([]any, 0, len(cfg.Encryption.PreviousKeys))
		for _, key := range cfg.Encryption.PreviousKeys {
			previous = append(previous, map[string]any{
				"key_id":    key.KeyID,
				"key":       key.Key,
				"not_after": key.NotAfter,
			})
		}
		encryption["previous_keys"] = previous
	}
	if includeZero || cfg.Encryption.CacheDerivedKeys {
		encryption["cache_derived_keys"] = cfg.Encryption.CacheDerivedKeys
	}
	if len(encryption) > 0 {
		layer["encryption"] = encryption
	}

	oauth := map[string]any{}
	if includeZero || cfg.OAuth.SessionTTL > 0 {
		oauth["session_ttl"] = cfg.OAuth.SessionTTL
	}
	if includeZero || cfg.OAuth.TokenRequestTimeout > 0 {
		oauth["token_request_timeout"] = cfg.OAuth.TokenRequestTimeout
	}
	if includeZero || cfg.OAuth.RetryDelay > 0 {
		oauth["retry_delay"] = cfg.OAuth.RetryDelay
	}
	if len(oauth) > 0 {
		layer["oauth"] = oauth
	}

	if includeZero || len(cfg.Providers) > 0 {
		providers := make(map[string]any, len(cfg.Providers))
		for id, provider := range cfg.Providers {
			providers[strings.TrimSpace(strings.ToLower(id))] = map[string]any{
				"client_id":     provider.ClientID,
				"client_secret": provider.ClientSecret,
				"redirect_uri":  provider.RedirectURI,
				"auth_url":      provider.AuthURL,
				"token_url":     provider.TokenURL,
				"tenant":        provider.Tenant,
				"scopes":        append([]string(nil), provider.Scopes...),
			}
		}
		layer["providers"] = providers
	}
	return layer
}
