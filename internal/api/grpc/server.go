// Package grpc serves the standard gRPC health protocol for the graph service.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service name.
const ServiceName = "rbacgraph"

// Pinger reports whether a dependency (the snapshot store) is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server represents the gRPC server
type Server struct {
	server       *grpc.Server
	healthServer *health.Server
	port         int
	log          *zap.Logger
}

// NewServer creates a new gRPC server instance
func NewServer(port int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.ConnectionTimeout(30*time.Second),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(s)

	return &Server{server: s, healthServer: healthServer, port: port, log: log}
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.log.Info("gRPC server starting", zap.String("address", addr))
	go s.Serve(listener)
	return nil
}

// Serve serves on listener until Stop.
func (s *Server) Serve(listener net.Listener) {
	if err := s.server.Serve(listener); err != nil {
		s.log.Error("gRPC server failed", zap.Error(err))
	}
}

// WatchDependency flips the service status whenever p stops or resumes answering.
// It returns when ctx is done.
func (s *Server) WatchDependency(ctx context.Context, p Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.check(ctx, p)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) check(ctx context.Context, p Pinger) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := p.PingContext(ctx); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		s.log.Warn("snapshot store unreachable", zap.Error(err))
	}
	s.healthServer.SetServingStatus(ServiceName, status)
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server")
	s.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.log.Info("gRPC server stopped gracefully")
	case <-time.After(5 * time.Second):
		s.log.Warn("gRPC server forced to stop after timeout")
		s.server.Stop()
	}
}
