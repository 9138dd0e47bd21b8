package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type EncryptionConfig = core.EncryptionConfig

type OAuthConfig = core.OAuthConfig

type ProviderConfig = core.ProviderConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SessionStore = core.SessionStore
type TokenSetStore = core.TokenSetStore
type TokenVault = core.TokenVault
type KeyRotator = core.KeyRotator
type CredentialLocker = core.CredentialLocker
type JobEnqueuer = core.JobEnqueuer

type ConnectRequest = core.ConnectRequest
type CallbackRequest = core.CallbackRequest
type RefreshRequest = core.RefreshRequest
type DisconnectRequest = core.DisconnectRequest
type ConnectionStatusRequest = core.ConnectionStatusRequest
type RotateKeysRequest = core.RotateKeysRequest

type AuthorizationRedirect = core.AuthorizationRedirect
type ConnectionStatus = core.ConnectionStatus
type RotateKeysResult = core.RotateKeysResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithSessionStore      = core.WithSessionStore
	WithTokenSetStore     = core.WithTokenSetStore
	WithTokenVault        = core.WithTokenVault
	WithRegistry          = core.WithRegistry
	WithKeyRotator        = core.WithKeyRotator
	WithCredentialLocker  = core.WithCredentialLocker
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds the credential core with caller supplied dependencies.
// Use Setup to have the vault, rotation and providers built from Config.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
