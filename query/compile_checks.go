package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[ConnectionStatusMessage, core.ConnectionStatus] = (*ConnectionStatusQuery)(nil)
	_ gocmd.Querier[AccessTokenMessage, string]                     = (*AccessTokenQuery)(nil)

	_ ConnectionStatusReader = (*core.Service)(nil)
	_ AccessTokenReader      = (*core.Service)(nil)
)
