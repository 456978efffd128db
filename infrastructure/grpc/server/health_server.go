package server

import (
	"context"
	"log/slog"
	"time"

	"vetchat/contract"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probed by orchestrators (k8s grpc probes).
const ServiceName = "vetchat.Messaging"

// HealthServer publishes the standard gRPC health service. As a supervised
// worker it keeps the status in line with the presence registry: a registry
// that stops answering turns the service NOT_SERVING.
type HealthServer struct {
	log      *slog.Logger
	health   *health.Server
	presence contract.IPresence
	interval time.Duration
}

func NewHealthServer(log *slog.Logger, presence contract.IPresence, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &HealthServer{log: log, health: health.NewServer(), presence: presence, interval: interval}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *HealthServer) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s.health)
}

func (s *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return nil
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *HealthServer) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if _, err := s.presence.Stats(ctx); err != nil {
		s.log.Warn("Presence registry not answering", "error", err)
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
}

func (s *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
