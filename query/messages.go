package query

import "github.com/goliatone/go-integrations/core"

const (
	TypeConnectionStatus = "integrations.query.connection.status"
	TypeAccessToken      = "integrations.query.connection.access_token"
)

type ConnectionStatusMessage struct {
	OrganizationID string
	ProviderID     string
}

func (ConnectionStatusMessage) Type() string { return TypeConnectionStatus }

func (m ConnectionStatusMessage) Validate() error {
	return connectionKeyError(TypeConnectionStatus, m.OrganizationID, m.ProviderID)
}

func (m ConnectionStatusMessage) request() core.ConnectionStatusRequest {
	return core.ConnectionStatusRequest{OrganizationID: m.OrganizationID, ProviderID: m.ProviderID}
}

// AccessTokenMessage asks for the decrypted access token of a connection.
// Results must never be logged.
type AccessTokenMessage struct {
	OrganizationID string
	ProviderID     string
}

func (AccessTokenMessage) Type() string { return TypeAccessToken }

func (m AccessTokenMessage) Validate() error {
	return connectionKeyError(TypeAccessToken, m.OrganizationID, m.ProviderID)
}

func (m AccessTokenMessage) request() core.ConnectionStatusRequest {
	return core.ConnectionStatusRequest{OrganizationID: m.OrganizationID, ProviderID: m.ProviderID}
}
