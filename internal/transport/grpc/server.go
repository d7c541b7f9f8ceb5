package grpcx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName - имя в grpc.health.v1 для readiness всего узла.
const ServiceName = "realtime.v1.Realtime"

// Checker - зависимость узла (хранилище, Redis).
type Checker func(ctx context.Context) error

// Server отдаёт grpc.health.v1; статус обновляется по результатам проверок.
type Server struct {
	grpc   *grpc.Server
	health *health.Server

	mu     sync.Mutex
	checks map[string]Checker
}

func NewServer(checks map[string]Checker, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	}, opts...)

	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		checks: checks,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range checks {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Probe выполняет все проверки один раз и возвращает true, если всё живо.
func (s *Server) Probe(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := true
	for name, check := range s.checks {
		st := healthpb.HealthCheckResponse_SERVING
		if err := check(ctx); err != nil {
			slog.Warn("grpc health check failed", "check", name, "err", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
			ok = false
		}
		s.health.SetServingStatus(name, st)
	}

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return ok
}

// RunProbes повторяет Probe каждые every до отмены ctx.
func (s *Server) RunProbes(ctx context.Context, every time.Duration) {
	s.Probe(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, every)
			s.Probe(pctx)
			cancel()
		}
	}
}

// GracefulStop переводит health в NOT_SERVING и дожидается активных вызовов.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
