package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
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

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	SessionStore      SessionStore
	TokenSetStore     TokenSetStore
	TokenVault        TokenVault
	Registry          Registry
	KeyRotator        KeyRotator
	JobEnqueuer       JobEnqueuer
}

// NewService resolves configuration and wires the credential core. A
// missing vault or an invalid master key fails with InvalidConfiguration.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	finalConfig, err := ResolveConfig(context.Background(), builder.runtimeConfig, builder.configProvider, builder.optionsResolver)
	if err != nil {
		return nil, err
	}
	finalConfig.OAuth = finalConfig.OAuth.withDefaults()

	if builder.tokenVault == nil {
		return nil, NewInvalidConfigurationError("core: token vault is required")
	}

	if (builder.sessionStore == nil || builder.tokenSetStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.applyStores(stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.applyStores(stores)
		}
	}
	if builder.sessionStore == nil {
		builder.sessionStore = NewMemorySessionStore()
	}
	if builder.tokenSetStore == nil {
		builder.tokenSetStore = NewMemoryTokenSetStore()
	}
	if builder.credentialLocker == nil {
		builder.credentialLocker = NewMemoryCredentialLocker()
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		sessionStore:      builder.sessionStore,
		tokenSetStore:     builder.tokenSetStore,
		tokenVault:        builder.tokenVault,
		registry:          builder.registry,
		keyRotator:        builder.keyRotator,
		credentialLocker:  builder.credentialLocker,
		jobEnqueuer:       builder.jobEnqueuer,
		now:               builder.now,
	}, nil
}

func (b *serviceBuilder) applyStores(stores StoreProvider) {
	if stores == nil {
		return
	}
	if b.sessionStore == nil {
		b.sessionStore = stores.SessionStore()
	}
	if b.tokenSetStore == nil {
		b.tokenSetStore = stores.TokenSetStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		SessionStore:      s.sessionStore,
		TokenSetStore:     s.tokenSetStore,
		TokenVault:        s.tokenVault,
		Registry:          s.registry,
		KeyRotator:        s.keyRotator,
		JobEnqueuer:       s.jobEnqueuer,
	}
}

// Connect starts an authorization attempt. It refuses when the organization
// already holds a token set for the provider.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (redirect AuthorizationRedirect, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":     req.ProviderID,
		"organization_id": req.OrganizationID,
		"initiated_by":    req.InitiatedBy,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return AuthorizationRedirect{}, err
	}
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return AuthorizationRedirect{}, err
	}

	_, getErr := s.tokenSetStore.Get(ctx, req.OrganizationID, provider.ID())
	switch {
	case getErr == nil:
		err = s.errorFactory(
			fmt.Sprintf("provider %q is already connected", provider.ID()),
			goerrors.CategoryConflict,
		).WithTextCode(ServiceErrorAlreadyConnected).
			WithMetadata(map[string]any{"provider_id": provider.ID()})
		err = s.mapError(err)
		return AuthorizationRedirect{}, err
	case !errors.Is(getErr, ErrTokenSetNotFound):
		err = s.mapError(getErr)
		return AuthorizationRedirect{}, err
	}

	session, err := newPKCESessionAt(provider.ID(), req.RedirectURI, s.config.OAuth.SessionTTL, s.now())
	if err != nil {
		err = s.mapError(err)
		return AuthorizationRedirect{}, err
	}
	session.OrganizationID = strings.TrimSpace(req.OrganizationID)
	session.InitiatedBy = strings.TrimSpace(req.InitiatedBy)
	session.Scopes = normalizeScopes(req.Scopes)
	if len(session.Scopes) == 0 {
		session.Scopes = normalizeScopes(provider.DefaultScopes())
	}

	authURL, err := provider.AuthorizationURL(session, session.Scopes)
	if err != nil {
		err = s.mapError(err)
		return AuthorizationRedirect{}, err
	}
	if err = s.sessionStore.Save(ctx, session); err != nil {
		err = s.mapError(err)
		return AuthorizationRedirect{}, err
	}

	return AuthorizationRedirect{
		URL:       authURL,
		State:     session.State,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Service) Disconnect(ctx context.Context, req DisconnectRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":     req.ProviderID,
		"organization_id": req.OrganizationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	if err = validateConnectionKey(req.OrganizationID, req.ProviderID); err != nil {
		err = s.mapError(err)
		return err
	}
	lock, err := awaitCredentialLock(ctx, s.credentialLocker, tokenSetKey(req.OrganizationID, req.ProviderID))
	if err != nil {
		err = s.mapError(err)
		return err
	}
	defer func() {
		_ = lock.Unlock(ctx)
	}()
	if err = s.tokenSetStore.Delete(ctx, req.OrganizationID, req.ProviderID); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// ConnectionStatus reports connection metadata without token material. A
// missing token set is reported as not connected, not as an error.
func (s *Service) ConnectionStatus(ctx context.Context, req ConnectionStatusRequest) (ConnectionStatus, error) {
	if err := validateConnectionKey(req.OrganizationID, req.ProviderID); err != nil {
		return ConnectionStatus{}, s.mapError(err)
	}
	set, err := s.tokenSetStore.Get(ctx, req.OrganizationID, req.ProviderID)
	if errors.Is(err, ErrTokenSetNotFound) {
		return ConnectionStatus{
			OrganizationID: strings.TrimSpace(req.OrganizationID),
			ProviderID:     normalizeProviderID(req.ProviderID),
			Scopes:         []string{},
		}, nil
	}
	if err != nil {
		return ConnectionStatus{}, s.mapError(err)
	}
	return s.statusFromTokenSet(set), nil
}

func (s *Service) statusFromTokenSet(set OAuthTokenSet) ConnectionStatus {
	status := ConnectionStatus{
		OrganizationID:  set.OrganizationID,
		ProviderID:      set.ProviderID,
		Connected:       true,
		HasRefreshToken: set.HasRefreshToken(),
		Scopes:          append([]string{}, set.Scopes...),
		ExpiresAt:       cloneTimePointer(set.ExpiresAt),
		EncryptionKeyID: set.EncryptionKeyID,
		ConnectedBy:     set.ConnectedBy,
		UpdatedAt:       set.UpdatedAt,
	}
	if set.ExpiresAt != nil && !s.now().Before(*set.ExpiresAt) {
		status.Expired = true
	}
	return status
}

func validateConnectionKey(organizationID, providerID string) error {
	if strings.TrimSpace(organizationID) == "" {
		return fmt.Errorf("core: organization id is required")
	}
	if strings.TrimSpace(providerID) == "" {
		return fmt.Errorf("core: provider id is required")
	}
	return nil
}

func (s *Service) resolveProvider(providerID string) (Provider, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	providerID = normalizeProviderID(providerID)
	provider, ok := s.registry.Get(providerID)
	if ok {
		return provider, nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("provider %q is not registered", providerID),
		goerrors.CategoryNotFound,
	).WithTextCode(ServiceErrorProviderNotFound)
	return nil, wrapped.WithMetadata(map[string]any{"provider_id": providerID})
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
