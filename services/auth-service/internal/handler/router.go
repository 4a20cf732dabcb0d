package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/usecase"
)

// HealthChecker reports whether the storage backend is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewHTTPRouter builds the HTTP API of the auth service.
func NewHTTPRouter(
	logger *zerolog.Logger,
	authUsecase usecase.AuthUsecase,
	passwordResetUsecase usecase.PasswordResetUsecase,
	health HealthChecker,
	validator *payload.Validator,
) http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(*logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	authHandler := &authHTTPHandler{
		authUsecase: authUsecase,
		validator:   validator,
	}
	resetHandler := &passwordResetHTTPHandler{
		passwordResetUsecase: passwordResetUsecase,
		validator:            validator,
	}
	guard := requireAuth(authUsecase)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler(health))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/google", authHandler.LoginWithGoogle)
			r.Post("/logout", authHandler.Logout)
			r.Post("/password-reset", resetHandler.RequestPasswordReset)
			r.Post("/password-reset/confirm", resetHandler.ConfirmPasswordReset)
			r.With(guard).Put("/password", authHandler.ChangePassword)
		})

		r.Route("/protected", func(r chi.Router) {
			r.Use(guard)
			r.Get("/profile", authHandler.Profile)
			r.Get("/session", authHandler.Session)
			r.Get("/sessions", authHandler.Sessions)
		})
	})

	return otelhttp.NewHandler(r, "auth-service")
}

func healthHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.Ping(ctx); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("storage ping failed")
			writeJSON(w, http.StatusServiceUnavailable, payload.HealthResponse{Status: "unavailable"})
			return
		}

		writeJSON(w, http.StatusOK, payload.HealthResponse{Status: "ok"})
	}
}
