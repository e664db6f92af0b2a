package health

import (
	"Go2NetGuard/internal/model"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServicePrefix prefixes the per-category health service names.
const ServicePrefix = "nsguard."

// ServiceName returns the health service name for a category.
func ServiceName(c model.Category) string {
	return ServicePrefix + c.String()
}

// Server exposes the standard gRPC health service. The empty service name
// reports the process; every category has its own service, NOT_SERVING
// while it is being dropped.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// NewServer creates a health server with every category SERVING.
func NewServer() *Server {
	hs := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	for _, c := range model.Categories() {
		hs.SetServingStatus(ServiceName(c), healthpb.HealthCheckResponse_SERVING)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &Server{grpcServer: s, health: hs}
}

// Health returns the health service implementation.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

func (s *Server) Name() string { return "health" }

// Write updates every category's status from a window report.
func (s *Server) Write(report *model.WindowReport) error {
	for _, c := range report.Categories {
		status := healthpb.HealthCheckResponse_SERVING
		if c.Verdict == model.Drop {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(ServiceName(c.Category), status)
	}
	return nil
}

// Serve listens on addr and blocks until Stop.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.Printf("gRPC health server listening at %v", lis.Addr())
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Stop marks everything NOT_SERVING and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	log.Println("gRPC health server stopped.")
}
