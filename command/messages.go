package command

import "github.com/goliatone/go-integrations/core"

const (
	TypeConnect          = "integrations.command.connect"
	TypeCompleteCallback = "integrations.command.callback.complete"
	TypeRefresh          = "integrations.command.refresh"
	TypeDisconnect       = "integrations.command.disconnect"
	TypeRotateKeys       = "integrations.command.keys.rotate"
	TypeEnqueueRefresh   = "integrations.command.refresh.enqueue"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	errs := connectionKeyErrors(TypeConnect, m.Request.OrganizationID, m.Request.ProviderID)
	errs.require("redirect_uri", m.Request.RedirectURI, "redirect uri is required")
	return errs.err()
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

// Validate only checks that a state is present. A provider error with no
// code still has to reach the service so the session gets consumed.
func (m CompleteCallbackMessage) Validate() error {
	errs := newFieldErrors(TypeCompleteCallback)
	errs.require("state", m.Request.State, "state is required")
	return errs.err()
}

type RefreshMessage struct {
	Request core.RefreshRequest
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	return connectionKeyErrors(TypeRefresh, m.Request.OrganizationID, m.Request.ProviderID).err()
}

type EnqueueRefreshMessage struct {
	Request core.RefreshRequest
}

func (EnqueueRefreshMessage) Type() string { return TypeEnqueueRefresh }

func (m EnqueueRefreshMessage) Validate() error {
	return connectionKeyErrors(TypeEnqueueRefresh, m.Request.OrganizationID, m.Request.ProviderID).err()
}

type DisconnectMessage struct {
	Request core.DisconnectRequest
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return connectionKeyErrors(TypeDisconnect, m.Request.OrganizationID, m.Request.ProviderID).err()
}

type RotateKeysMessage struct {
	Request core.RotateKeysRequest
}

func (RotateKeysMessage) Type() string { return TypeRotateKeys }

func (m RotateKeysMessage) Validate() error {
	errs := newFieldErrors(TypeRotateKeys)
	if m.Request.BatchSize < 0 {
		errs.add("batch_size", "batch size must be >= 0")
	}
	return errs.err()
}

func connectionKeyErrors(messageType, organizationID, providerID string) *fieldErrors {
	errs := newFieldErrors(messageType)
	errs.require("organization_id", organizationID, "organization id is required")
	errs.require("provider_id", providerID, "provider id is required")
	return errs
}
