package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the closed set of failure kinds raised by the credential core.
type ErrorKind string

const (
	KindInvalidConfiguration ErrorKind = "INVALID_CONFIGURATION"
	KindCsrfMismatch         ErrorKind = "CSRF_MISMATCH"
	KindPkceMismatch         ErrorKind = "PKCE_MISMATCH"
	KindSessionExpired       ErrorKind = "SESSION_EXPIRED"
	KindDecryptionFailed     ErrorKind = "DECRYPTION_FAILED"
	KindExchangeFailed       ErrorKind = "EXCHANGE_FAILED"
)

const (
	ServiceErrorBadInput         = "SERVICE_BAD_INPUT"
	ServiceErrorProviderNotFound = "SERVICE_PROVIDER_NOT_FOUND"
	ServiceErrorAlreadyConnected = "SERVICE_ALREADY_CONNECTED"
	ServiceErrorNotConnected     = "SERVICE_NOT_CONNECTED"
	ServiceErrorRefreshInFlight  = "SERVICE_REFRESH_IN_PROGRESS"
	ServiceErrorTokenSetChanged  = "SERVICE_TOKEN_SET_CHANGED"
	ServiceErrorInternal         = "SERVICE_INTERNAL_ERROR"
)

// CSRF and PKCE failures share one message so callers cannot tell them apart.
const authorizationRejectedMessage = "authorization request could not be verified"

var (
	ErrSessionNotFound  = errors.New("core: oauth session not found")
	ErrSessionConsumed  = errors.New("core: oauth session already consumed")
	ErrTokenSetNotFound = errors.New("core: token set not found")
	ErrTokenSetChanged  = errors.New("core: token set changed concurrently")
)

func ErrorKinds() []ErrorKind {
	return []ErrorKind{
		KindInvalidConfiguration,
		KindCsrfMismatch,
		KindPkceMismatch,
		KindSessionExpired,
		KindDecryptionFailed,
		KindExchangeFailed,
	}
}

func (k ErrorKind) Valid() bool {
	switch k {
	case KindInvalidConfiguration,
		KindCsrfMismatch,
		KindPkceMismatch,
		KindSessionExpired,
		KindDecryptionFailed,
		KindExchangeFailed:
		return true
	default:
		return false
	}
}

// KindOf reports the credential-core kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return "", false
	}
	kind := ErrorKind(strings.TrimSpace(richErr.TextCode))
	if !kind.Valid() {
		return "", false
	}
	return kind, true
}

func IsKind(err error, kind ErrorKind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

func NewInvalidConfigurationError(message string) *goerrors.Error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "credential core is not configured"
	}
	return newKindError(KindInvalidConfiguration, message, nil)
}

func NewCsrfMismatchError(cause error) *goerrors.Error {
	return newKindError(KindCsrfMismatch, authorizationRejectedMessage, cause)
}

func NewPkceMismatchError(cause error) *goerrors.Error {
	return newKindError(KindPkceMismatch, authorizationRejectedMessage, cause)
}

func NewSessionExpiredError() *goerrors.Error {
	return newKindError(KindSessionExpired, "authorization session expired, restart the connection flow", nil)
}

// NewDecryptionFailedError never carries a cause; the cause is logged by the caller.
func NewDecryptionFailedError() *goerrors.Error {
	return newKindError(KindDecryptionFailed, "token decryption failed", nil)
}

func NewExchangeFailedError(providerID string, cause error) *goerrors.Error {
	err := newKindError(KindExchangeFailed, "provider rejected the authorization grant", cause)
	if providerID = strings.TrimSpace(providerID); providerID != "" {
		err = err.WithMetadata(map[string]any{"provider_id": providerID})
	}
	return err
}

// ProviderResponseError holds a token endpoint rejection. Error() omits the
// body so it never reaches user-facing messages.
type ProviderResponseError struct {
	StatusCode       int
	ErrorCode        string
	ErrorDescription string
	Body             []byte
}

func (e *ProviderResponseError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode == 0 && e.ErrorCode != "" {
		return fmt.Sprintf("provider returned error %s", e.ErrorCode)
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("provider responded with status %d (%s)", e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("provider responded with status %d", e.StatusCode)
}

// ProviderResponseBody returns the raw provider body for logging.
func ProviderResponseBody(err error) string {
	var responseErr *ProviderResponseError
	if errors.As(err, &responseErr) && responseErr != nil {
		return string(responseErr.Body)
	}
	return ""
}

func newKindError(kind ErrorKind, message string, cause error) *goerrors.Error {
	category, status, severity := kindEnvelope(kind)
	err := goerrors.New(message, category)
	err.Source = cause
	return err.
		WithCode(status).
		WithTextCode(string(kind)).
		WithSeverity(severity)
}

func kindEnvelope(kind ErrorKind) (goerrors.Category, int, goerrors.Severity) {
	switch kind {
	case KindInvalidConfiguration:
		return goerrors.CategoryInternal, http.StatusInternalServerError, goerrors.SeverityCritical
	case KindCsrfMismatch, KindPkceMismatch, KindSessionExpired:
		return goerrors.CategoryAuth, http.StatusUnauthorized, goerrors.SeverityWarning
	case KindDecryptionFailed:
		return goerrors.CategoryInternal, http.StatusInternalServerError, goerrors.SeverityCritical
	case KindExchangeFailed:
		return goerrors.CategoryExternal, http.StatusBadGateway, goerrors.SeverityError
	default:
		return goerrors.CategoryInternal, http.StatusInternalServerError, goerrors.SeverityError
	}
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionConsumed):
		return NewCsrfMismatchError(err)
	case errors.Is(err, ErrTokenSetNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotConnected)
	case errors.Is(err, ErrRefreshInProgress):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorRefreshInFlight)
	case errors.Is(err, ErrTokenSetChanged):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorTokenSetChanged)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorProviderNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotConnected
	case goerrors.CategoryConflict:
		return ServiceErrorAlreadyConnected
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
