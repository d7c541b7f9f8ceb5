package grpcx

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestUnaryServerInterceptor_RecoversPanic(t *testing.T) {
	ic := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := ic(context.Background(), &healthpb.HealthCheckRequest{}, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryServerInterceptor_AddsDeadline(t *testing.T) {
	ic := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}})

	var deadline time.Time
	resp, err := ic(ctx, &healthpb.HealthCheckRequest{Service: "store"}, info, func(ctx context.Context, _ any) (any, error) {
		d, ok := ctx.Deadline()
		require.True(t, ok)
		deadline = d
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.WithinDuration(t, time.Now().Add(DefaultCallTimeout), deadline, time.Second)
}

func TestCheckName(t *testing.T) {
	assert.Equal(t, "node", checkName(&healthpb.HealthCheckRequest{}))
	assert.Equal(t, "redis", checkName(&healthpb.HealthCheckRequest{Service: "redis"}))
	assert.Empty(t, checkName("other"))
}
