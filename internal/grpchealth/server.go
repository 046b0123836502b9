// Package grpchealth serves the standard gRPC health protocol so orchestrators
// can probe the trainer without going through HTTP.
package grpchealth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ashureev/pm-roleplay/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "pmtrainer.Storage"

const defaultProbeInterval = 15 * time.Second

// Server reports SERVING while the storage backend answers pings.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	kv       store.KV
	interval time.Duration
	logger   *slog.Logger
}

// New creates a health server. kv may be nil, in which case it always reports SERVING.
func New(kv store.KV, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		grpc:     gs,
		health:   hs,
		kv:       kv,
		interval: defaultProbeInterval,
		logger:   logger,
	}
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done, then stops gracefully.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	s.probe(ctx)

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.probeLoop(probeCtx)

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (s *Server) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *Server) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.kv != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.kv.Ping(pingCtx)
		cancel()
		if err != nil {
			s.logger.Warn("storage ping failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
