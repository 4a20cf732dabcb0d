package utilities

import (
	"context"
	"net/http"
	"slices"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

var defaultHeadersToForward = []string{
	"Authorization",
	"User-Agent",
	"X-Request-ID",
	"X-Forwarded-For",
	"X-Real-IP",
}

// RegisterHealthServer registers the gRPC health check service and marks the
// server and every named service as serving.
func RegisterHealthServer(grpcServer *grpc.Server, services ...string) *health.Server {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return healthServer
}

// ForwardHTTPHeadersToGRPC returns a context whose outgoing gRPC metadata
// carries the default headers plus headersToForward copied from r.
func ForwardHTTPHeadersToGRPC(ctx context.Context, r *http.Request, headersToForward ...string) context.Context {
	md := metadata.New(nil)

	seen := make(map[string]bool)
	for _, header := range slices.Concat(defaultHeadersToForward, headersToForward) {
		key := http.CanonicalHeaderKey(header)
		if seen[key] {
			continue
		}
		seen[key] = true

		if values := r.Header.Values(key); len(values) > 0 {
			md.Set(key, values...)
		}
	}

	return metadata.NewOutgoingContext(ctx, md)
}
