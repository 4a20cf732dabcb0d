package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/interceptor"
	"github.com/vasapolrittideah/credential-authority/shared/introspect"
)

type introspectionGRPCHandler struct {
	logger      *zerolog.Logger
	authUsecase usecase.AuthUsecase
}

// NewIntrospectionGRPCHandler registers the token introspection service on
// server.
func NewIntrospectionGRPCHandler(server *grpc.Server, logger *zerolog.Logger, authUsecase usecase.AuthUsecase) {
	handler := &introspectionGRPCHandler{
		logger:      logger,
		authUsecase: authUsecase,
	}

	introspect.RegisterTokenIntrospectionServer(server, handler)
}

// ExemptGRPCMethods lists the unary methods the auth interceptor must let
// through. Introspect carries the token in its request and health checks come
// from the service registry without credentials.
var ExemptGRPCMethods = []string{
	introspect.IntrospectMethod,
	grpc_health_v1.Health_Check_FullMethodName,
}

func (h *introspectionGRPCHandler) Introspect(
	ctx context.Context,
	req *wrapperspb.StringValue,
) (*structpb.Struct, error) {
	principal, err := h.authUsecase.Authenticate(ctx, req.GetValue())
	if err != nil {
		return nil, h.toStatus(err, "failed to introspect token")
	}

	resp, err := introspect.PrincipalToStruct(principal)
	if err != nil {
		return nil, h.toStatus(apperror.ErrInternal.Wrap(err), "failed to encode principal")
	}

	return resp, nil
}

func (h *introspectionGRPCHandler) Revoke(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	token, err := interceptor.BearerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.authUsecase.Logout(ctx, token); err != nil {
		return nil, h.toStatus(err, "failed to revoke session")
	}

	return &emptypb.Empty{}, nil
}

func (h *introspectionGRPCHandler) toStatus(err error, msg string) error {
	appErr := apperror.From(err)
	if appErr.Kind == apperror.KindInternal || appErr.Kind == apperror.KindUnavailable {
		h.logger.Error().Err(err).Msg(msg)
	}
	return appErr
}
