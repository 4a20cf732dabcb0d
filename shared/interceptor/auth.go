package interceptor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
)

// Authenticator resolves a bearer token to a principal. Implementations
// must verify the token and check that its session is still usable.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// NewAuthInterceptor guards every unary method except exemptMethods. The
// resolved principal is stored in the context for the handler.
func NewAuthInterceptor(authenticator Authenticator, exemptMethods []string) grpc.UnaryServerInterceptor {
	exemptMap := make(map[string]bool)
	for _, method := range exemptMethods {
		exemptMap[method] = true
	}

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		// Skip authentication for exempt methods
		if exemptMap[info.FullMethod] {
			return handler(ctx, req)
		}

		token, err := BearerFromContext(ctx)
		if err != nil {
			return nil, err
		}

		principal, err := authenticator.Authenticate(ctx, token)
		if err != nil {
			return nil, apperror.From(err)
		}

		return handler(auth.WithPrincipal(ctx, principal), req)
	}
}

// BearerFromContext returns the bearer token of the incoming call.
func BearerFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", apperror.ErrUnauthorized.WithMessage("missing metadata")
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return "", apperror.ErrUnauthorized.WithMessage("missing authorization header")
	}

	token, ok := auth.BearerToken(values[0])
	if !ok {
		return "", apperror.ErrUnauthorized.WithMessage("invalid authorization header format")
	}

	return token, nil
}
