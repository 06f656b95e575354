package app_error

import "net/http"

// Kind is the stable, client-visible error category.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindForbidden      Kind = "forbidden"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindStorage        Kind = "storage"
	KindUnavailable    Kind = "unavailable"
	KindInternal       Kind = "internal"
)

type AppError struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e AppError) Error() string {
	return e.Message
}

func NewAppError(code int, msg, field string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kindForCode(code),
		Message: msg,
		Field:   field,
	}
}

func NewAuthError(msg string) *AppError {
	return NewAppError(http.StatusUnauthorized, msg, "auth")
}

func NewForbiddenError(msg string) *AppError {
	return NewAppError(http.StatusForbidden, msg, "role")
}

func NewValidationError(msg, field string) *AppError {
	return NewAppError(http.StatusBadRequest, msg, field)
}

// NewNotFoundError covers both "missing" and "owned by someone else"; callers
// cannot tell another user's records from absent ones.
func NewNotFoundError(msg string) *AppError {
	return NewAppError(http.StatusNotFound, msg, "not-found")
}

// NewStorageError carries a generic message only; details belong in server logs.
func NewStorageError(field string) *AppError {
	return NewAppError(http.StatusInternalServerError, "internal storage error", field)
}

func NewUnavailableError(msg, field string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, msg, field)
}

func kindForCode(code int) Kind {
	switch code {
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return KindUnavailable
	case http.StatusInternalServerError:
		return KindStorage
	default:
		return KindInternal
	}
}
