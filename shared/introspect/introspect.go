// Package introspect declares the auth.v1.TokenIntrospection gRPC service.
// Messages are protobuf well-known types so no generated code is needed.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vasapolrittideah/credential-authority/shared/auth"
)

const (
	ServiceName = "auth.v1.TokenIntrospection"

	IntrospectMethod = "/auth.v1.TokenIntrospection/Introspect"
	RevokeMethod     = "/auth.v1.TokenIntrospection/Revoke"
)

const (
	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at"
)

// TokenIntrospectionServer is the server API of the service.
type TokenIntrospectionServer interface {
	// Introspect resolves a bearer token to its principal.
	Introspect(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error)

	// Revoke invalidates the session of the bearer token of the call.
	Revoke(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
}

// RegisterTokenIntrospectionServer registers srv on s.
func RegisterTokenIntrospectionServer(s grpc.ServiceRegistrar, srv TokenIntrospectionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the grpc.ServiceDesc of auth.v1.TokenIntrospection.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TokenIntrospectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
		{MethodName: "Revoke", Handler: revokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auth/v1/introspection.proto",
}

func introspectHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenIntrospectionServer).Introspect(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IntrospectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenIntrospectionServer).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func revokeHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenIntrospectionServer).Revoke(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RevokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenIntrospectionServer).Revoke(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// TokenIntrospectionClient is the client API of the service.
type TokenIntrospectionClient struct {
	cc grpc.ClientConnInterface
}

// NewTokenIntrospectionClient creates a client on cc.
func NewTokenIntrospectionClient(cc grpc.ClientConnInterface) *TokenIntrospectionClient {
	return &TokenIntrospectionClient{cc: cc}
}

func (c *TokenIntrospectionClient) Introspect(
	ctx context.Context,
	in *wrapperspb.StringValue,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, IntrospectMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TokenIntrospectionClient) Revoke(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, RevokeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PrincipalToStruct encodes p as the Introspect response.
func PrincipalToStruct(p *auth.Principal) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldUserID:    p.UserID,
		fieldExpiresAt: p.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

var errMalformedResponse = errors.New("malformed introspection response")

// PrincipalFromStruct decodes an Introspect response.
func PrincipalFromStruct(s *structpb.Struct) (*auth.Principal, error) {
	fields := s.GetFields()

	userID := fields[fieldUserID].GetStringValue()
	if userID == "" {
		return nil, fmt.Errorf("%w: missing %s", errMalformedResponse, fieldUserID)
	}

	expiresAt, err := time.Parse(time.RFC3339, fields[fieldExpiresAt].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errMalformedResponse, fieldExpiresAt, err)
	}

	return &auth.Principal{UserID: userID, ExpiresAt: expiresAt}, nil
}
