// Package apperror defines the error taxonomy shared by the auth use cases and
// the transports that render them.
package apperror

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an error by who can act on it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindConflict
	KindNotFound
	KindUnavailable
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to callers; Cause is
// for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying cause. The copy still matches e with errors.Is.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Cause: cause}
}

// WithMessage returns a copy of e with a different public message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg, Cause: e.Cause}
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps the kind to a gRPC status code.
func (e *Error) GRPCCode() codes.Code {
	switch e.Kind {
	case KindValidation:
		return codes.InvalidArgument
	case KindAuthentication:
		return codes.Unauthenticated
	case KindConflict:
		return codes.AlreadyExists
	case KindNotFound:
		return codes.NotFound
	case KindUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// GRPCStatus lets grpc-go render e as a status carrying only the public
// message.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message)
}

var (
	ErrValidationFailed = &Error{
		Kind: KindValidation, Code: "VALIDATION_FAILED", Message: "validation failed",
	}
	ErrEmailExists = &Error{
		Kind: KindConflict, Code: "EMAIL_EXISTS", Message: "email already registered",
	}
	ErrInvalidCredentials = &Error{
		Kind: KindAuthentication, Code: "INVALID_CREDENTIALS", Message: "invalid credentials",
	}
	ErrFederatedAuthFailed = &Error{
		Kind: KindAuthentication, Code: "GOOGLE_AUTH_FAILED", Message: "google authentication failed",
	}
	ErrInvalidOrExpiredToken = &Error{
		Kind: KindAuthentication, Code: "INVALID_OR_EXPIRED_TOKEN", Message: "invalid or expired reset token",
	}
	ErrUnauthorized = &Error{
		Kind: KindAuthentication, Code: "UNAUTHORIZED", Message: "unauthorized",
	}
	ErrNotFound = &Error{
		Kind: KindNotFound, Code: "NOT_FOUND", Message: "resource not found",
	}
	ErrUnavailable = &Error{
		Kind: KindUnavailable, Code: "UNAVAILABLE", Message: "service temporarily unavailable",
	}
	ErrInternal = &Error{
		Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "something went wrong",
	}
)

// From extracts an *Error from err, falling back to ErrInternal wrapping err.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.Wrap(err)
}
