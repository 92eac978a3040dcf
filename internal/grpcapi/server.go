// Package grpcapi exposes the standard gRPC health service. The
// "totem.authority" service reports SERVING only while hardware authority is
// connected, so orchestrators can route around a revoked node.
package grpcapi

import (
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
)

// AuthorityService is the health service name that mirrors the gate.
const AuthorityService = "totem.authority"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *log.Logger
}

// NewServer registers the health service and subscribes it to gate changes.
func NewServer(gate *authority.Gate, logger *log.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	gate.Watch(func(st authority.Status) {
		s.health.SetServingStatus(AuthorityService, servingStatus(st))
	})
	return s
}

func servingStatus(st authority.Status) healthpb.HealthCheckResponse_ServingStatus {
	if st.Connected() {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Serve blocks until the listener fails or the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Printf("grpc listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Shutdown flips every service to NOT_SERVING and drains open streams.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
