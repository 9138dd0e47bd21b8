package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type ConnectionStatusReader interface {
	ConnectionStatus(ctx context.Context, req core.ConnectionStatusRequest) (core.ConnectionStatus, error)
}

type AccessTokenReader interface {
	AccessToken(ctx context.Context, req core.ConnectionStatusRequest) (string, error)
}

type ConnectionStatusQuery struct {
	reader ConnectionStatusReader
}

func NewConnectionStatusQuery(reader ConnectionStatusReader) *ConnectionStatusQuery {
	return &ConnectionStatusQuery{reader: reader}
}

func (q *ConnectionStatusQuery) Query(ctx context.Context, msg ConnectionStatusMessage) (core.ConnectionStatus, error) {
	if q == nil || q.reader == nil {
		return core.ConnectionStatus{}, missingReaderError("connection status reader")
	}
	return q.reader.ConnectionStatus(ctx, msg.request())
}

type AccessTokenQuery struct {
	reader AccessTokenReader
}

func NewAccessTokenQuery(reader AccessTokenReader) *AccessTokenQuery {
	return &AccessTokenQuery{reader: reader}
}

func (q *AccessTokenQuery) Query(ctx context.Context, msg AccessTokenMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", missingReaderError("access token reader")
	}
	return q.reader.AccessToken(ctx, msg.request())
}
