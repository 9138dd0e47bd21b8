package command

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

// missingDependencyError reports a handler built without the collaborator it
// delegates to.
func missingDependencyError(dependency string) error {
	return goerrors.New("command: "+dependency+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ServiceErrorInternal).
		WithMetadata(map[string]any{"dependency": dependency})
}

// fieldErrors collects every failing field of one message.
type fieldErrors struct {
	messageType string
	fields      []goerrors.FieldError
}

func newFieldErrors(messageType string) *fieldErrors {
	return &fieldErrors{messageType: messageType}
}

func (f *fieldErrors) require(field, value, message string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, message)
	}
}

func (f *fieldErrors) add(field, message string) {
	f.fields = append(f.fields, goerrors.FieldError{Field: field, Message: message})
}

func (f *fieldErrors) err() error {
	if len(f.fields) == 0 {
		return nil
	}
	return goerrors.NewValidation("command: invalid "+f.messageType+" message", f.fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput).
		WithSeverity(goerrors.SeverityError).
		WithMetadata(map[string]any{"message_type": f.messageType})
}
