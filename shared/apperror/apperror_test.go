package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestError_IsMatchesByCode(t *testing.T) {
	wrapped := ErrEmailExists.Wrap(errors.New("duplicate key"))

	assert.ErrorIs(t, wrapped, ErrEmailExists)
	assert.NotErrorIs(t, wrapped, ErrInvalidCredentials)
	assert.ErrorIs(t, fmt.Errorf("register: %w", wrapped), ErrEmailExists)
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrUnavailable.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "service temporarily unavailable: connection refused", err.Error())
	assert.Equal(t, "service temporarily unavailable", err.Message)
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		err      *Error
		httpCode int
		grpcCode codes.Code
	}{
		{ErrValidationFailed, http.StatusBadRequest, codes.InvalidArgument},
		{ErrInvalidCredentials, http.StatusUnauthorized, codes.Unauthenticated},
		{ErrFederatedAuthFailed, http.StatusUnauthorized, codes.Unauthenticated},
		{ErrEmailExists, http.StatusConflict, codes.AlreadyExists},
		{ErrNotFound, http.StatusNotFound, codes.NotFound},
		{ErrUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{ErrInternal, http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.httpCode, tt.err.HTTPStatus())
			assert.Equal(t, tt.grpcCode, tt.err.GRPCCode())
		})
	}
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	appErr := From(fmt.Errorf("outer: %w", ErrNotFound))
	assert.Equal(t, ErrNotFound.Code, appErr.Code)

	plain := errors.New("boom")
	internal := From(plain)
	assert.Equal(t, KindInternal, internal.Kind)
	assert.ErrorIs(t, internal, plain)
}

func TestError_WithMessageKeepsIdentity(t *testing.T) {
	err := ErrValidationFailed.WithMessage("password is too weak")

	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Equal(t, "password is too weak", err.Error())
}

func TestError_GRPCStatusHidesCause(t *testing.T) {
	err := ErrUnavailable.Wrap(errors.New("dial tcp 10.0.0.3:5432: connection refused"))

	st, ok := status.FromError(err)
	assert.True(t, ok)
	assert.Equal(t, codes.Unavailable, st.Code())
	assert.Equal(t, "service temporarily unavailable", st.Message())
}
