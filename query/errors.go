package query

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

func missingReaderError(reader string) error {
	return goerrors.New("query: "+reader+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ServiceErrorInternal).
		WithMetadata(map[string]any{"dependency": reader})
}

// connectionKeyError reports every blank part of an (organization, provider)
// key, or nil.
func connectionKeyError(messageType, organizationID, providerID string) error {
	var fields []goerrors.FieldError
	if strings.TrimSpace(organizationID) == "" {
		fields = append(fields, goerrors.FieldError{Field: "organization_id", Message: "organization id is required"})
	}
	if strings.TrimSpace(providerID) == "" {
		fields = append(fields, goerrors.FieldError{Field: "provider_id", Message: "provider id is required"})
	}
	if len(fields) == 0 {
		return nil
	}
	return goerrors.NewValidation("query: invalid "+messageType+" message", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput).
		WithSeverity(goerrors.SeverityError).
		WithMetadata(map[string]any{"message_type": messageType})
}
