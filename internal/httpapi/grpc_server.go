package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"elevate.org/internal/obs"
)

// GRPCServer exposes grpc.health.v1.Health; its serving status follows the
// readiness probe.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
}

// NewGRPCServer creates the health service wrapper. Status starts as
// NOT_SERVING until the first Refresh.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{health: hs, readiness: r}
}

// Register attaches the health service to s.
func (s *GRPCServer) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.health)
}

// Refresh runs the readiness probe once and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	ok := true
	if err := s.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		ok = false
		obs.Logger().WithError(err).Warn("readiness probe failed")
	}
	obs.SetReady(ok)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
	return ok
}

// Run refreshes the status every interval until ctx is done, then marks the
// service as shutting down.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			s.Refresh(probeCtx)
			cancel()
		}
	}
}
