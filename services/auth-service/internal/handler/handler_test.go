package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
)

type stubAuthUsecase struct {
	result    *usecase.AuthResult
	err       error
	sessions  map[string]*auth.Principal
	logouts   []string
	gotParams any
	gotToken  string
}

func (s *stubAuthUsecase) Register(_ context.Context, params usecase.RegisterParams) (*usecase.AuthResult, error) {
	s.gotParams = params
	return s.result, s.err
}

func (s *stubAuthUsecase) Login(_ context.Context, params usecase.LoginParams) (*usecase.AuthResult, error) {
	s.gotParams = params
	return s.result, s.err
}

func (s *stubAuthUsecase) LoginWithGoogle(
	_ context.Context,
	params usecase.GoogleLoginParams,
) (*usecase.AuthResult, error) {
	s.gotParams = params
	return s.result, s.err
}

func (s *stubAuthUsecase) Logout(_ context.Context, token string) error {
	s.logouts = append(s.logouts, token)
	delete(s.sessions, token)
	return s.err
}

func (s *stubAuthUsecase) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	p, ok := s.sessions[token]
	if !ok {
		return nil, apperror.ErrUnauthorized
	}
	return p, nil
}

func (s *stubAuthUsecase) ChangePassword(_ context.Context, params usecase.ChangePasswordParams) error {
	s.gotParams = params
	return s.err
}

func (s *stubAuthUsecase) GetProfile(_ context.Context, userID string) (*usecase.PublicUser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.PublicUser{ID: userID, Email: "ann@example.com", Name: "Ann", HasPassword: true}, nil
}

func (s *stubAuthUsecase) ListSessions(_ context.Context, userID, currentToken string) ([]*usecase.SessionInfo, error) {
	s.gotToken = currentToken
	return []*usecase.SessionInfo{
		{ID: "s-1", Current: true},
		{ID: "s-2", IPAddress: "192.0.2.1"},
	}, s.err
}

type stubResetUsecase struct {
	requested []string
	confirmed []string
	err       error
}

func (s *stubResetUsecase) RequestPasswordReset(_ context.Context, email string) error {
	s.requested = append(s.requested, email)
	return s.err
}

func (s *stubResetUsecase) ConfirmPasswordReset(_ context.Context, resetToken, _ string) error {
	s.confirmed = append(s.confirmed, resetToken)
	return s.err
}

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

type routerFixture struct {
	handler http.Handler
	auth    *stubAuthUsecase
	reset   *stubResetUsecase
}

func newRouterFixture(t *testing.T, health HealthChecker) *routerFixture {
	t.Helper()

	validator, err := payload.NewValidator()
	require.NoError(t, err)

	logger := zerolog.Nop()
	f := &routerFixture{
		auth: &stubAuthUsecase{
			result: &usecase.AuthResult{
				Token:     "issued-token",
				ExpiresAt: time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
				User:      &usecase.PublicUser{ID: "u-1", Email: "ann@example.com", Name: "Ann"},
			},
			sessions: map[string]*auth.Principal{
				"good": {UserID: "u-1", ExpiresAt: time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)},
			},
		},
		reset: &stubResetUsecase{},
	}
	f.handler = NewHTTPRouter(&logger, f.auth, f.reset, health, validator)

	return f
}

func (f *routerFixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) payload.ErrorResponse {
	t.Helper()
	var resp payload.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegister(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	rec := f.do(http.MethodPost, "/api/auth/register",
		`{"email":"ann@example.com","password":"Str0ng!Pass","name":"Ann"}`, "")

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp payload.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "issued-token", resp.Token)
	assert.Equal(t, "u-1", resp.User.ID)

	params, ok := f.auth.gotParams.(usecase.RegisterParams)
	require.True(t, ok)
	assert.Equal(t, "ann@example.com", params.Email)
	assert.NotEmpty(t, params.Origin.IPAddress)
}

func TestRegister_ValidationFailure(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	rec := f.do(http.MethodPost, "/api/auth/register", `{"email":"bad","password":"weak","name":""}`, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", resp.Code)
	assert.Contains(t, resp.Details, "email")
	assert.Contains(t, resp.Details, "password")
	assert.Contains(t, resp.Details, "name")
	assert.Nil(t, f.auth.gotParams)
}

func TestRegister_MalformedJSON(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	rec := f.do(http.MethodPost, "/api/auth/register", `{"email":`, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, rec).Code)
}

func TestLogin_ErrorRendering(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name: "invalid credentials", err: apperror.ErrInvalidCredentials,
			wantStatus: http.StatusUnauthorized, wantCode: "INVALID_CREDENTIALS", wantMsg: "invalid credentials",
		},
		{
			name: "storage unavailable", err: apperror.ErrUnavailable.Wrap(errors.New("pq: connection refused")),
			wantStatus: http.StatusServiceUnavailable, wantCode: "UNAVAILABLE", wantMsg: "service temporarily unavailable",
		},
		{
			name: "unclassified", err: errors.New("nil pointer somewhere"),
			wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR", wantMsg: "something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, stubHealth{})
			f.auth.err = tt.err

			rec := f.do(http.MethodPost, "/api/auth/login", `{"email":"ann@example.com","password":"x"}`, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Error)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestLoginWithGoogle(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	rec := f.do(http.MethodPost, "/api/auth/google", `{"credential":"id-token"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	params, ok := f.auth.gotParams.(usecase.GoogleLoginParams)
	require.True(t, ok)
	assert.Equal(t, "id-token", params.Credential)

	f.auth.err = apperror.ErrFederatedAuthFailed
	rec = f.do(http.MethodPost, "/api/auth/google", `{"credential":"id-token"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "GOOGLE_AUTH_FAILED", decodeError(t, rec).Code)
}

func TestLogout(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	rec := f.do(http.MethodPost, "/api/auth/logout", "", "good")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/logout", "", "good")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/logout", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{"good", "good", ""}, f.auth.logouts)

	rec = f.do(http.MethodGet, "/api/protected/session", "", "good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardedRoutes(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	for _, path := range []string{"/api/protected/profile", "/api/protected/session", "/api/protected/sessions"} {
		t.Run(path, func(t *testing.T) {
			rec := f.do(http.MethodGet, path, "", "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)

			rec = f.do(http.MethodGet, path, "", "forged")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = f.do(http.MethodGet, path, "", "good")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestSessionAndSessions(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	rec := f.do(http.MethodGet, "/api/protected/session", "", "good")
	require.Equal(t, http.StatusOK, rec.Code)

	var session payload.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "u-1", session.UserID)

	rec = f.do(http.MethodGet, "/api/protected/sessions", "", "good")
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []payload.ActiveSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].Current)
	assert.Equal(t, "good", f.auth.gotToken)
}

func TestChangePassword(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})
	body := `{"current_password":"Old!Pass1","new_password":"N3w!Password"}`

	rec := f.do(http.MethodPut, "/api/auth/password", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, f.auth.gotParams)

	rec = f.do(http.MethodPut, "/api/auth/password", body, "good")
	require.Equal(t, http.StatusNoContent, rec.Code)

	params, ok := f.auth.gotParams.(usecase.ChangePasswordParams)
	require.True(t, ok)
	assert.Equal(t, "u-1", params.UserID)
	assert.Equal(t, "N3w!Password", params.NewPassword)
}

func TestChangePassword_WrongCurrentPasswordWinsOverWeakNewPassword(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})
	f.auth.err = apperror.ErrInvalidCredentials

	rec := f.do(http.MethodPut, "/api/auth/password", `{"current_password":"wrong","new_password":"weak"}`, "good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeError(t, rec).Code)

	params, ok := f.auth.gotParams.(usecase.ChangePasswordParams)
	require.True(t, ok)
	assert.Equal(t, "weak", params.NewPassword)
}

func TestPasswordReset(t *testing.T) {
	f := newRouterFixture(t, stubHealth{})

	rec := f.do(http.MethodPost, "/api/auth/password-reset", `{"email":"nobody@example.com"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"nobody@example.com"}, f.reset.requested)

	rec = f.do(http.MethodPost, "/api/auth/password-reset/confirm", `{"token":"abc","new_password":"N3w!Password"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"abc"}, f.reset.confirmed)

	f.reset.err = apperror.ErrInvalidOrExpiredToken
	rec = f.do(http.MethodPost, "/api/auth/password-reset/confirm", `{"token":"abc","new_password":"N3w!Password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", decodeError(t, rec).Code)
}

func TestHealth(t *testing.T) {
	rec := newRouterFixture(t, stubHealth{}).do(http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = newRouterFixture(t, stubHealth{err: errors.New("down")}).do(http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}
