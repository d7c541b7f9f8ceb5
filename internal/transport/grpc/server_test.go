package grpcx

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dial(t *testing.T, s *Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.GRPC().Serve(lis) }()
	t.Cleanup(s.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func servingStatus(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_HealthFollowsChecks(t *testing.T) {
	var storeDown atomic.Bool
	s := NewServer(map[string]Checker{
		"store": func(context.Context) error {
			if storeDown.Load() {
				return errors.New("down")
			}
			return nil
		},
		"redis": func(context.Context) error { return nil },
	})
	c := dial(t, s)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, c, ServiceName))

	require.True(t, s.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, c, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, c, "store"))

	storeDown.Store(true)
	require.False(t, s.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, c, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, c, "store"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, c, "redis"))
}

func TestServer_UnknownService(t *testing.T) {
	c := dial(t, NewServer(nil))

	_, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	require.Error(t, err)
}
