package integrations

import (
	"context"
	"fmt"
	"reflect"

	gocmd "github.com/goliatone/go-command"
	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

type Commands struct {
	Connect          *integrationcommand.ConnectCommand
	CompleteCallback *integrationcommand.CompleteCallbackCommand
	Refresh          *integrationcommand.RefreshCommand
	EnqueueRefresh   *integrationcommand.EnqueueRefreshCommand
	Disconnect       *integrationcommand.DisconnectCommand
	// RotateKeys is nil when no key rotator is available.
	RotateKeys *integrationcommand.RotateKeysCommand
}

type Queries struct {
	ConnectionStatus *integrationquery.ConnectionStatusQuery
	AccessToken      *integrationquery.AccessTokenQuery
}

// Facade exposes the credential commands and queries as plain method calls.
// Every call validates its message first, the same way the dispatcher does.
type Facade struct {
	service  CredentialService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	rotator core.KeyRotator
}

// WithFacadeKeyRotator sets the rotator used by RotateKeys. Without it the
// facade falls back to the service's configured rotator.
func WithFacadeKeyRotator(rotator core.KeyRotator) FacadeOption {
	return func(options *facadeOptions) {
		options.rotator = rotator
	}
}

func NewFacade(service CredentialService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: credential service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	rotator := cfg.rotator
	if isNilRotator(rotator) {
		rotator = resolveKeyRotator(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Connect:          integrationcommand.NewConnectCommand(service),
		CompleteCallback: integrationcommand.NewCompleteCallbackCommand(service),
		Refresh:          integrationcommand.NewRefreshCommand(service),
		EnqueueRefresh:   integrationcommand.NewEnqueueRefreshCommand(service),
		Disconnect:       integrationcommand.NewDisconnectCommand(service),
	}
	if rotator != nil {
		facade.commands.RotateKeys = integrationcommand.NewRotateKeysCommand(service, rotator)
	}
	facade.queries = Queries{
		ConnectionStatus: integrationquery.NewConnectionStatusQuery(service),
		AccessToken:      integrationquery.NewAccessTokenQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CredentialService {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Connect(ctx context.Context, req ConnectRequest) (AuthorizationRedirect, error) {
	if f == nil {
		return AuthorizationRedirect{}, errFacadeNotConfigured
	}
	return executeWithResult[AuthorizationRedirect](ctx, f.commands.Connect, integrationcommand.ConnectMessage{Request: req})
}

func (f *Facade) CompleteCallback(ctx context.Context, req CallbackRequest) (ConnectionStatus, error) {
	if f == nil {
		return ConnectionStatus{}, errFacadeNotConfigured
	}
	return executeWithResult[ConnectionStatus](ctx, f.commands.CompleteCallback, integrationcommand.CompleteCallbackMessage{Request: req})
}

func (f *Facade) Refresh(ctx context.Context, req RefreshRequest) (ConnectionStatus, error) {
	if f == nil {
		return ConnectionStatus{}, errFacadeNotConfigured
	}
	return executeWithResult[ConnectionStatus](ctx, f.commands.Refresh, integrationcommand.RefreshMessage{Request: req})
}

func (f *Facade) EnqueueRefresh(ctx context.Context, req RefreshRequest) error {
	if f == nil {
		return errFacadeNotConfigured
	}
	return execute(ctx, f.commands.EnqueueRefresh, integrationcommand.EnqueueRefreshMessage{Request: req})
}

func (f *Facade) Disconnect(ctx context.Context, req DisconnectRequest) error {
	if f == nil {
		return errFacadeNotConfigured
	}
	return execute(ctx, f.commands.Disconnect, integrationcommand.DisconnectMessage{Request: req})
}

func (f *Facade) RotateKeys(ctx context.Context, req RotateKeysRequest) (RotateKeysResult, error) {
	if f == nil {
		return RotateKeysResult{}, errFacadeNotConfigured
	}
	if f.commands.RotateKeys == nil {
		return RotateKeysResult{}, core.NewInvalidConfigurationError("integrations: key rotator is not configured")
	}
	return executeWithResult[RotateKeysResult](ctx, f.commands.RotateKeys, integrationcommand.RotateKeysMessage{Request: req})
}

func (f *Facade) ConnectionStatus(ctx context.Context, req ConnectionStatusRequest) (ConnectionStatus, error) {
	if f == nil {
		return ConnectionStatus{}, errFacadeNotConfigured
	}
	msg := integrationquery.ConnectionStatusMessage{OrganizationID: req.OrganizationID, ProviderID: req.ProviderID}
	if err := gocmd.ValidateMessage(msg); err != nil {
		return ConnectionStatus{}, err
	}
	return f.queries.ConnectionStatus.Query(ctx, msg)
}

func (f *Facade) AccessToken(ctx context.Context, req ConnectionStatusRequest) (string, error) {
	if f == nil {
		return "", errFacadeNotConfigured
	}
	msg := integrationquery.AccessTokenMessage{OrganizationID: req.OrganizationID, ProviderID: req.ProviderID}
	if err := gocmd.ValidateMessage(msg); err != nil {
		return "", err
	}
	return f.queries.AccessToken.Query(ctx, msg)
}

var errFacadeNotConfigured = fmt.Errorf("integrations: facade is not configured")

func execute[M any](ctx context.Context, cmd gocmd.Commander[M], msg M) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	return cmd.Execute(ctx, msg)
}

func executeWithResult[R any, M any](ctx context.Context, cmd gocmd.Commander[M], msg M) (R, error) {
	var zero R
	collector := gocmd.NewResult[R]()
	if err := execute(gocmd.ContextWithResult(ctx, collector), cmd, msg); err != nil {
		return zero, err
	}
	out, ok := collector.Load()
	if !ok {
		return zero, fmt.Errorf("integrations: command %T produced no result", msg)
	}
	return out, nil
}

func resolveKeyRotator(service CredentialService) core.KeyRotator {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	rotator := provider.Dependencies().KeyRotator
	if isNilRotator(rotator) {
		return nil
	}
	return rotator
}

// isNilRotator also catches a typed nil pointer stored in the interface.
func isNilRotator(rotator core.KeyRotator) bool {
	if rotator == nil {
		return true
	}
	value := reflect.ValueOf(rotator)
	return value.Kind() == reflect.Ptr && value.IsNil()
}
