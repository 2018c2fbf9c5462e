// Package errors defines the error taxonomy shared by the services and the
// HTTP layer. Every failure a caller can see maps to one sentinel, one stable
// code and one HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("resource not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrInternal           = errors.New("internal error")
	ErrServiceUnavail     = errors.New("service unavailable")
)

// Codes as they appear in the error envelope.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavail     = "SERVICE_UNAVAILABLE"
)

type kind struct {
	sentinel error
	code     string
	status   int
}

// kinds is searched in order; the first sentinel err matches wins.
var kinds = []kind{
	{ErrValidation, CodeValidation, http.StatusBadRequest},
	{ErrInvalidCredentials, CodeInvalidCredentials, http.StatusUnauthorized},
	{ErrUnauthenticated, CodeUnauthenticated, http.StatusUnauthorized},
	{ErrForbidden, CodeForbidden, http.StatusForbidden},
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
	{ErrDuplicateEmail, CodeDuplicateEmail, http.StatusConflict},
	{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests},
	{ErrServiceUnavail, CodeServiceUnavail, http.StatusServiceUnavailable},
}

var internal = kind{ErrInternal, CodeInternal, http.StatusInternalServerError}

func classify(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internal
}

// AppError is an error with a caller-facing message. Err is kept for logs and
// errors.Is; it is never serialized.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func newAppError(sentinel error, message string) *AppError {
	k := classify(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func Validation(message string) *AppError {
	return newAppError(ErrValidation, message)
}

// InvalidCredentials does not say whether the email or the password was wrong.
func InvalidCredentials() *AppError {
	return newAppError(ErrInvalidCredentials, "invalid email or password")
}

func DuplicateEmail(email string) *AppError {
	return newAppError(ErrDuplicateEmail, fmt.Sprintf("email %q is already registered", email))
}

// Unauthenticated covers missing, malformed, expired and revoked tokens.
func Unauthenticated(message string) *AppError {
	return newAppError(ErrUnauthenticated, message)
}

func Forbidden(message string) *AppError {
	return newAppError(ErrForbidden, message)
}

func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s %s not found", resource, id))
}

func RateLimited(message string) *AppError {
	return newAppError(ErrRateLimited, message)
}

// Internal hides err behind a generic message. err stays reachable through
// errors.Is and errors.As for logging.
func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// HTTPStatus maps err to a response status. Unrecognized errors are 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return classify(err).status
}

// Code maps err to its envelope code. Unrecognized errors are INTERNAL_ERROR.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return classify(err).code
}
