package integrations

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/adapters/gologger"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/security"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const defaultDerivedKeyCacheTTL = 10 * time.Minute

type SetupOption func(*setupOptions)

type setupOptions struct {
	serviceOptions  []Option
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	httpClient      *http.Client
	persistence     *persistence.Client
	tokenSetCache   repositorycache.CacheService
	jobEnqueuer     queue.Enqueuer
	retryPolicy     gojob.RetryPolicy
	derivedKeyTTL   time.Duration
	hooks           *ExtensionHooks
}

// WithServiceOptions appends core options. They are applied last, so they
// override anything Setup wires on its own.
func WithServiceOptions(opts ...Option) SetupOption {
	return func(o *setupOptions) {
		o.serviceOptions = append(o.serviceOptions, opts...)
	}
}

func WithConfigSource(provider core.ConfigProvider, resolver core.OptionsResolver) SetupOption {
	return func(o *setupOptions) {
		o.configProvider = provider
		o.optionsResolver = resolver
	}
}

func WithSetupLogger(logger core.Logger) SetupOption {
	return func(o *setupOptions) {
		o.logger = logger
	}
}

func WithSetupLoggerProvider(provider core.LoggerProvider) SetupOption {
	return func(o *setupOptions) {
		o.loggerProvider = provider
	}
}

// WithHTTPClient is used by every configured provider for token requests.
func WithHTTPClient(client *http.Client) SetupOption {
	return func(o *setupOptions) {
		o.httpClient = client
	}
}

// WithPersistence stores sessions and token sets in SQL. Session verifiers
// are sealed with the runtime vault. Migrations are not applied here.
func WithPersistence(client *persistence.Client) SetupOption {
	return func(o *setupOptions) {
		o.persistence = client
	}
}

// WithTokenSetCache puts a read-through cache in front of the SQL token set
// store. Ignored without WithPersistence.
func WithTokenSetCache(cacheService repositorycache.CacheService) SetupOption {
	return func(o *setupOptions) {
		o.tokenSetCache = cacheService
	}
}

func WithJobQueue(enqueuer queue.Enqueuer) SetupOption {
	return func(o *setupOptions) {
		o.jobEnqueuer = enqueuer
	}
}

func WithRetryPolicy(policy gojob.RetryPolicy) SetupOption {
	return func(o *setupOptions) {
		o.retryPolicy = policy
	}
}

func WithDerivedKeyCacheTTL(ttl time.Duration) SetupOption {
	return func(o *setupOptions) {
		if ttl > 0 {
			o.derivedKeyTTL = ttl
		}
	}
}

func WithExtensionHooks(hooks *ExtensionHooks) SetupOption {
	return func(o *setupOptions) {
		o.hooks = hooks
	}
}

// Runtime is a fully wired credential core: keyring, vault, rotation,
// providers and the service on top of them.
type Runtime struct {
	Service  *Service
	Facade   *Facade
	Keyring  *security.Keyring
	Vault    *security.Vault
	Rotation *security.Rotation
	Deriver  *security.CachedDeriver
	Stores   *sqlstore.RepositoryFactory
	Bundles  map[string]any

	config         Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	retryPolicy    gojob.RetryPolicy
}

// Setup resolves cfg and builds the keyring, vault and rotation from
// encryption settings and a provider registry from the providers map.
func Setup(cfg Config, opts ...SetupOption) (*Runtime, error) {
	options := setupOptions{
		retryPolicy:   gojob.DefaultRetryPolicy(),
		derivedKeyTTL: defaultDerivedKeyCacheTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	resolved, err := core.ResolveConfig(context.Background(), cfg, options.configProvider, options.optionsResolver)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		config:         resolved,
		loggerProvider: options.loggerProvider,
		logger:         gologger.Component(options.loggerProvider, options.logger, ""),
		retryPolicy:    options.retryPolicy,
	}

	rt.Keyring, err = security.KeyringFromConfig(resolved.Encryption, security.WithKeyringDiagnostics(rt.keyringDiagnostics))
	if err != nil {
		return nil, core.NewInvalidConfigurationError(fmt.Sprintf("integrations: build keyring: %v", err))
	}

	cipherOpts := []security.CipherOption{
		security.WithCipherLogger(gologger.Component(options.loggerProvider, options.logger, "cipher")),
	}
	if resolved.Encryption.CacheDerivedKeys {
		cacheService, err := security.NewDerivedKeyCacheService(options.derivedKeyTTL)
		if err != nil {
			return nil, fmt.Errorf("integrations: derived key cache: %w", err)
		}
		rt.Deriver, err = security.NewCachedDeriver(security.PBKDF2Deriver{}, cacheService)
		if err != nil {
			return nil, err
		}
		cipherOpts = append(cipherOpts, security.WithKeyDeriver(rt.Deriver))
	}

	rt.Vault, err = security.NewVault(rt.Keyring,
		security.WithVaultCipher(security.NewTokenCipher(cipherOpts...)),
		security.WithVaultLogger(gologger.Component(options.loggerProvider, options.logger, "vault")),
	)
	if err != nil {
		return nil, err
	}
	rt.Rotation, err = security.NewRotation(rt.Vault, rt.Keyring.Active())
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistryFromConfig(resolved, options.httpClient, options.hooks)
	if err != nil {
		return nil, core.NewInvalidConfigurationError(err.Error())
	}

	serviceOpts := []Option{
		core.WithRegistry(registry),
		core.WithTokenVault(rt.Vault),
		core.WithKeyRotator(rt.Rotation),
	}
	if options.logger != nil {
		serviceOpts = append(serviceOpts, core.WithLogger(options.logger))
	}
	if options.loggerProvider != nil {
		serviceOpts = append(serviceOpts, core.WithLoggerProvider(options.loggerProvider))
	}
	if options.configProvider != nil {
		serviceOpts = append(serviceOpts, core.WithConfigProvider(options.configProvider))
	}
	if options.optionsResolver != nil {
		serviceOpts = append(serviceOpts, core.WithOptionsResolver(options.optionsResolver))
	}
	if options.persistence != nil {
		factoryOpts := []sqlstore.FactoryOption{
			sqlstore.WithSessionStoreOptions(sqlstore.WithVerifierSealer(rt.Vault)),
		}
		if options.tokenSetCache != nil {
			factoryOpts = append(factoryOpts, sqlstore.WithTokenSetCache(options.tokenSetCache))
		}
		rt.Stores = sqlstore.NewRepositoryFactory(factoryOpts...)
		serviceOpts = append(serviceOpts,
			core.WithPersistenceClient(options.persistence),
			core.WithRepositoryFactory(rt.Stores),
		)
	}
	if options.jobEnqueuer != nil {
		serviceOpts = append(serviceOpts, core.WithJobEnqueuer(gojob.NewEnqueuerAdapter(options.jobEnqueuer)))
	}
	serviceOpts = append(serviceOpts, options.serviceOptions...)

	rt.Service, err = core.NewService(resolved, serviceOpts...)
	if err != nil {
		return nil, err
	}
	rt.Facade, err = NewFacade(rt.Service, WithFacadeKeyRotator(rt.Rotation))
	if err != nil {
		return nil, err
	}
	rt.Bundles, err = options.hooks.BuildCommandQueryBundles(rt.Service)
	if err != nil {
		return nil, err
	}

	rt.logger.Info("credential runtime ready",
		"active_key_id", rt.Keyring.KeyID(),
		"providers", len(registry.List()),
		"sql_stores", rt.Stores != nil,
		"derived_key_cache", rt.Deriver != nil,
	)
	return rt, nil
}

func (r *Runtime) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.config
}

// NewWorker builds a go-job worker loop that runs refresh and rotation jobs
// against the runtime service.
func (r *Runtime) NewWorker(dequeuer queue.Dequeuer, opts ...gojob.WorkerOption) (*gojob.Worker, error) {
	if r == nil || r.Service == nil {
		return nil, fmt.Errorf("integrations: runtime is not configured")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("integrations: dequeuer is required")
	}
	base := []gojob.WorkerOption{
		gojob.WithWorkerLogger(gologger.Component(r.loggerProvider, r.logger, "worker")),
	}
	return gojob.NewWorker(gojob.NewDequeuerAdapter(dequeuer, r.retryPolicy), r.Service, append(base, opts...)...)
}

// RegisterHandlers subscribes the credential commands and queries on the
// go-command dispatcher.
func (r *Runtime) RegisterHandlers(adapter *gocommand.RegistryAdapter) (*gocommand.CredentialHandlers, error) {
	if r == nil || r.Service == nil {
		return nil, fmt.Errorf("integrations: runtime is not configured")
	}
	return gocommand.RegisterCredentialHandlers(adapter, r.Service, r.Rotation)
}

// JobLoggers returns go-job logger bridges for queue backends.
func (r *Runtime) JobLoggers() (job.LoggerProvider, job.Logger) {
	var provider core.LoggerProvider
	var logger core.Logger
	if r != nil {
		provider, logger = r.loggerProvider, r.logger
	}
	_, _, jobProvider, jobLogger := gologger.ResolveForJob(gologger.DefaultName, provider, logger)
	return jobProvider, jobLogger
}

func (r *Runtime) keyringDiagnostics(event security.KeyringDiagnostic) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Debug("keyring lookup", "outcome", event.Outcome, "key_id", event.KeyID)
}
