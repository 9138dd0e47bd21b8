package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

// MutatingService is the slice of core.Service the commands drive.
type MutatingService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.AuthorizationRedirect, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.ConnectionStatus, error)
	Refresh(ctx context.Context, req core.RefreshRequest) (core.ConnectionStatus, error)
	Disconnect(ctx context.Context, req core.DisconnectRequest) error
}

type KeyRotationService interface {
	RotateKeys(ctx context.Context, rotator core.KeyRotator, req core.RotateKeysRequest) (core.RotateKeysResult, error)
}

type RefreshScheduler interface {
	EnqueueRefresh(ctx context.Context, req core.RefreshRequest) error
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return missingDependencyError("connect service")
	}
	out, err := c.service.Connect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return missingDependencyError("callback service")
	}
	out, err := c.service.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return missingDependencyError("refresh service")
	}
	out, err := c.service.Refresh(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueRefreshCommand struct {
	scheduler RefreshScheduler
}

func NewEnqueueRefreshCommand(scheduler RefreshScheduler) *EnqueueRefreshCommand {
	return &EnqueueRefreshCommand{scheduler: scheduler}
}

func (c *EnqueueRefreshCommand) Execute(ctx context.Context, msg EnqueueRefreshMessage) error {
	if c == nil || c.scheduler == nil {
		return missingDependencyError("refresh scheduler")
	}
	return c.scheduler.EnqueueRefresh(ctx, msg.Request)
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return missingDependencyError("disconnect service")
	}
	return c.service.Disconnect(ctx, msg.Request)
}

// RotateKeysCommand sweeps stored token sets onto the rotator's target key.
type RotateKeysCommand struct {
	service KeyRotationService
	rotator core.KeyRotator
}

func NewRotateKeysCommand(service KeyRotationService, rotator core.KeyRotator) *RotateKeysCommand {
	return &RotateKeysCommand{service: service, rotator: rotator}
}

func (c *RotateKeysCommand) Execute(ctx context.Context, msg RotateKeysMessage) error {
	if c == nil || c.service == nil {
		return missingDependencyError("key rotation service")
	}
	if c.rotator == nil {
		return missingDependencyError("key rotator")
	}
	out, err := c.service.RotateKeys(ctx, c.rotator, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
