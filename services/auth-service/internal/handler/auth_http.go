package handler

import (
	"net/http"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
)

type authHTTPHandler struct {
	authUsecase usecase.AuthUsecase
	validator   *payload.Validator
}

func (h *authHTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req payload.RegisterRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.authUsecase.Register(r.Context(), usecase.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Origin:   clientOrigin(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

func (h *authHTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req payload.LoginRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.authUsecase.Login(r.Context(), usecase.LoginParams{
		Email:    req.Email,
		Password: req.Password,
		Origin:   clientOrigin(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *authHTTPHandler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	var req payload.GoogleLoginRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.authUsecase.LoginWithGoogle(r.Context(), usecase.GoogleLoginParams{
		Credential: req.Credential,
		Origin:     clientOrigin(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Logout succeeds even without a bearer token.
func (h *authHTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.BearerToken(r.Header.Get("Authorization"))

	if err := h.authUsecase.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *authHTTPHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.ErrUnauthorized)
		return
	}

	var req payload.ChangePasswordRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authUsecase.ChangePassword(r.Context(), usecase.ChangePasswordParams{
		UserID:          principal.UserID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *authHTTPHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.ErrUnauthorized)
		return
	}

	user, err := h.authUsecase.GetProfile(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *authHTTPHandler) Session(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, payload.SessionResponse{
		UserID:    principal.UserID,
		ExpiresAt: principal.ExpiresAt,
	})
}

func (h *authHTTPHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.ErrUnauthorized)
		return
	}

	sessions, err := h.authUsecase.ListSessions(r.Context(), principal.UserID, bearerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]payload.ActiveSessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, payload.ActiveSessionResponse{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			Current:   s.Current,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func toAuthResponse(result *usecase.AuthResult) payload.AuthResponse {
	return payload.AuthResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.User),
	}
}

func toUserResponse(user *usecase.PublicUser) *payload.UserResponse {
	return &payload.UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Picture:       user.Picture,
		EmailVerified: user.EmailVerified,
		HasPassword:   user.HasPassword,
		HasGoogle:     user.HasGoogle,
		CreatedAt:     user.CreatedAt,
		LastLoginAt:   user.LastLoginAt,
	}
}
