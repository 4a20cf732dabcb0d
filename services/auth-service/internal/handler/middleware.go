package handler

import (
	"context"
	"net/http"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
	"github.com/vasapolrittideah/credential-authority/shared/interceptor"
	"github.com/vasapolrittideah/credential-authority/shared/utilities"
)

type bearerKey struct{}

// requireAuth rejects requests whose bearer token does not verify or whose
// session is no longer usable.
func requireAuth(authenticator interceptor.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, apperror.ErrUnauthorized)
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			ctx = context.WithValue(ctx, bearerKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

func clientOrigin(r *http.Request) model.ClientOrigin {
	ip, userAgent := utilities.ClientOrigin(r)
	return model.ClientOrigin{IPAddress: ip, UserAgent: userAgent}
}
