package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Commander[ConnectMessage]          = (*ConnectCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage] = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[RefreshMessage]          = (*RefreshCommand)(nil)
	_ gocmd.Commander[EnqueueRefreshMessage]   = (*EnqueueRefreshCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]       = (*DisconnectCommand)(nil)
	_ gocmd.Commander[RotateKeysMessage]       = (*RotateKeysCommand)(nil)

	_ MutatingService    = (*core.Service)(nil)
	_ KeyRotationService = (*core.Service)(nil)
	_ RefreshScheduler   = (*core.Service)(nil)
)
