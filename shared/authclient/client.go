// Package authclient lets other services guard their requests with the auth
// service. Targets may use the consul:// scheme, e.g.
// "consul://127.0.0.1:8500/auth-service?healthy=true".
package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	_ "github.com/mbobakov/grpc-consul-resolver" // registers the consul:// scheme
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
	"github.com/vasapolrittideah/credential-authority/shared/introspect"
	"github.com/vasapolrittideah/credential-authority/shared/utilities"
)

const defaultTimeout = 3 * time.Second

// Client is a remote Authenticator backed by the TokenIntrospection service.
type Client struct {
	conn    *grpc.ClientConn
	rpc     *introspect.TokenIntrospectionClient
	timeout time.Duration
}

// New connects to the auth service at target. Extra options are appended to
// the defaults, which use plaintext transport and round-robin balancing.
func New(target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy":"round_robin"}`),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:    conn,
		rpc:     introspect.NewTokenIntrospectionClient(conn),
		timeout: defaultTimeout,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Authenticate resolves token remotely. Failures are returned as apperror
// values so callers can render them like local ones.
func (c *Client) Authenticate(ctx context.Context, token string) (*auth.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.rpc.Introspect(ctx, wrapperspb.String(token))
	if err != nil {
		return nil, fromStatus(err)
	}

	principal, err := introspect.PrincipalFromStruct(resp)
	if err != nil {
		return nil, apperror.ErrInternal.Wrap(err)
	}

	return principal, nil
}

// Revoke invalidates the session of token.
func (c *Client) Revoke(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	if _, err := c.rpc.Revoke(ctx, &emptypb.Empty{}); err != nil {
		return fromStatus(err)
	}

	return nil
}

// Middleware guards next with the remote dual check and stores the principal
// in the request context.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, apperror.ErrUnauthorized)
			return
		}

		ctx := utilities.ForwardHTTPHeadersToGRPC(r.Context(), r)
		principal, err := c.Authenticate(ctx, token)
		if err != nil {
			writeError(w, apperror.From(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func fromStatus(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated:
		return apperror.ErrUnauthorized.Wrap(err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return apperror.ErrUnavailable.Wrap(err)
	default:
		return apperror.ErrInternal.Wrap(err)
	}
}

func writeError(w http.ResponseWriter, appErr *apperror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}
