// Package grpc serves the gRPC health service of the sync service.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-sync/internal/observability"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer exposes grpc.health.v1.Health. The reported status follows
// the store's reachability.
type HealthServer struct {
	server  *grpc.Server
	health  *health.Server
	pinger  Pinger
	service string
	logger  log.Logger
}

func NewHealthServer(pinger Pinger, service string, logger log.Logger) *HealthServer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	return &HealthServer{server: srv, health: h, pinger: pinger, service: service, logger: logger}
}

// Probe pings the store once and publishes the result.
func (s *HealthServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		level.Warn(s.logger).Log("msg", "store ping failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
	return status
}

// Watch probes every interval until ctx ends.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.Probe(ctx)
	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			s.Probe(probeCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (s *HealthServer) Serve(lis net.Listener) error {
	level.Info(s.logger).Log("msg", "grpc health listening", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// GracefulStop marks the service as not serving and drains connections.
func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
