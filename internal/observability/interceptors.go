package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"ascend-interview-agent/internal/observability/metrics"
)

// UnaryServerInterceptor records call metrics for unary RPCs (health Check)
// and logs them at debug level.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		ev := observe(m, info.FullMethod, start, err, log.Debug())
		if hc, ok := req.(*grpc_health_v1.HealthCheckRequest); ok {
			ev = ev.Str("service", hc.GetService())
		}
		ev.Str("peer", peerAddr(ctx)).Msg("gRPC call")
		return resp, err
	}
}

// StreamServerInterceptor records metrics for streaming RPCs. Health Watch
// streams live as long as the client, so completion is logged at info.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		observe(m, info.FullMethod, start, err, log.Info()).
			Str("peer", peerAddr(ss.Context())).
			Msg("gRPC stream closed")
		return err
	}
}

func observe(m *metrics.Metrics, method string, start time.Time, err error, ev *zerolog.Event) *zerolog.Event {
	took := time.Since(start)
	code := status.Code(err).String()
	m.RecordGRPCCall(method, code, took.Seconds())
	return ev.Str("method", method).Str("code", code).Dur("duration", took)
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
