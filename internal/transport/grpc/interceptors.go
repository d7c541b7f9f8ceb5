package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/realtime-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// DefaultCallTimeout ограничивает вызов без собственного deadline (Check).
const DefaultCallTimeout = 10 * time.Second

// UnaryServerInterceptor: recovery, deadline guard и лог с peer, кодом и именем проверки.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
			logCall(ctx, "grpc unary", info.FullMethod, checkName(req), start, err)
		}()

		return handler(ctx, req)
	}
}

// StreamServerInterceptor - то же для Watch; поток живёт до отмены клиентом.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
			logCall(ss.Context(), "grpc stream", info.FullMethod, "", start, err)
		}()

		return handler(srv, ss)
	}
}

func recovered(method string, r any) error {
	slog.Error("grpc panic", "method", method, "panic", r, "stack", string(debug.Stack()))
	return status.Error(codes.Internal, "internal server error")
}

func logCall(ctx context.Context, msg, method, check string, start time.Time, err error) {
	attrs := []any{
		"method", method,
		"code", status.Code(err).String(),
		"dur_ms", time.Since(start).Milliseconds(),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer", p.Addr.String())
	}
	if check != "" {
		attrs = append(attrs, "check", check)
	}
	l := logger.FromContext(ctx)
	switch status.Code(err) {
	case codes.OK, codes.NotFound, codes.Canceled:
		l.Debug(msg, attrs...)
	default:
		l.Warn(msg, append(attrs, "err", err)...)
	}
}

// checkName - имя сервиса из health-запроса; "" - весь узел.
func checkName(req any) string {
	if r, ok := req.(*healthpb.HealthCheckRequest); ok {
		if r.GetService() == "" {
			return "node"
		}
		return r.GetService()
	}
	return ""
}
