package admin

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startAdmin(t *testing.T) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	probe := prometheus.NewCounter(prometheus.CounterOpts{Name: "admin_probe_total", Help: "probe"})
	reg.MustRegister(probe)
	probe.Add(3)

	s, err := New("127.0.0.1:0", reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("admin server did not stop")
		}
	})
	return s, reg
}

func httpGet(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAdminHTTP(t *testing.T) {
	s, _ := startAdmin(t)
	base := "http://" + s.Addr().String()

	code, body := httpGet(t, base+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "NOT_SERVING")

	s.SetServing(true)
	code, _ = httpGet(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)

	code, body = httpGet(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "admin_probe_total 3")
}

func TestAdminGRPCHealth(t *testing.T) {
	s, _ := startAdmin(t)
	s.SetServing(true)

	conn, err := grpc.NewClient(s.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	s.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestAdminStopIdempotent(t *testing.T) {
	s, err := New("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, err)
	s.Stop()
	s.Stop()
	assert.NoError(t, s.Serve(context.Background()))
}
