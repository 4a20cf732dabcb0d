package handler

import (
	"net/http"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/usecase"
)

type passwordResetHTTPHandler struct {
	passwordResetUsecase usecase.PasswordResetUsecase
	validator            *payload.Validator
}

// RequestPasswordReset always answers 202 for a well-formed email so the
// response does not reveal whether an account exists.
func (h *passwordResetHTTPHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req payload.PasswordResetRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.passwordResetUsecase.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *passwordResetHTTPHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req payload.PasswordResetConfirmRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.passwordResetUsecase.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
