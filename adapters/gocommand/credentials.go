package gocommand

import (
	"sync"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

// CredentialService is everything the credential commands and queries need.
// core.Service satisfies it.
type CredentialService interface {
	integrationcommand.MutatingService
	integrationcommand.RefreshScheduler
	integrationcommand.KeyRotationService
	integrationquery.ConnectionStatusReader
	integrationquery.AccessTokenReader
}

var _ CredentialService = (*core.Service)(nil)

// CredentialHandlers holds the dispatcher subscriptions created by
// RegisterCredentialHandlers.
type CredentialHandlers struct {
	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
}

func (h *CredentialHandlers) add(subscription commanddispatcher.Subscription) {
	if subscription == nil {
		return
	}
	h.mu.Lock()
	h.subscriptions = append(h.subscriptions, subscription)
	h.mu.Unlock()
}

// Len reports how many handlers are subscribed.
func (h *CredentialHandlers) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscriptions)
}

// Unsubscribe removes every handler from the dispatcher. Safe to call twice.
func (h *CredentialHandlers) Unsubscribe() {
	if h == nil {
		return
	}
	h.mu.Lock()
	subscriptions := h.subscriptions
	h.subscriptions = nil
	h.mu.Unlock()
	for _, subscription := range subscriptions {
		subscription.Unsubscribe()
	}
}

// RegisterCredentialHandlers subscribes the connect, callback, refresh,
// disconnect and status handlers. The key rotation command is only
// registered when rotator is set. On failure every subscription made so far
// is removed again.
func RegisterCredentialHandlers(
	adapter *RegistryAdapter,
	service CredentialService,
	rotator core.KeyRotator,
	runnerOpts ...runner.Option,
) (*CredentialHandlers, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, configurationError("credential service is required")
	}

	handlers := &CredentialHandlers{}
	register := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			handlers.Unsubscribe()
			return err
		}
		handlers.add(subscription)
		return nil
	}

	if err := register(RegisterAndSubscribe[integrationcommand.ConnectMessage](adapter, integrationcommand.NewConnectCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[integrationcommand.CompleteCallbackMessage](adapter, integrationcommand.NewCompleteCallbackCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[integrationcommand.RefreshMessage](adapter, integrationcommand.NewRefreshCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[integrationcommand.EnqueueRefreshMessage](adapter, integrationcommand.NewEnqueueRefreshCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[integrationcommand.DisconnectMessage](adapter, integrationcommand.NewDisconnectCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if rotator != nil {
		if err := register(RegisterAndSubscribe[integrationcommand.RotateKeysMessage](adapter, integrationcommand.NewRotateKeysCommand(service, rotator), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if err := register(RegisterAndSubscribeQuery[integrationquery.ConnectionStatusMessage, core.ConnectionStatus](adapter, integrationquery.NewConnectionStatusQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery[integrationquery.AccessTokenMessage, string](adapter, integrationquery.NewAccessTokenQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	return handlers, nil
}
