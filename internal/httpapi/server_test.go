package httpapi

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	circuit map[string]string
}

func (f *fakeProvider) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# HELP fake\nfake_metric 1\n"))
	})
}

func (f *fakeProvider) CircuitStats() map[string]string {
	return f.circuit
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServer_HealthAndCircuitEndpoints(t *testing.T) {
	provider := &fakeProvider{circuit: map[string]string{"rest": "closed (requests=4 failures=0)"}}
	cfg := DefaultConfig()
	cfg.Port = freePort(t)

	srv, err := New(provider, cfg)
	require.NoError(t, err)
	go srv.Start()
	defer srv.Shutdown(context.Background())

	waitForServer(t, "http://"+srv.Addr()+"/healthz")

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get("http://" + srv.Addr() + "/circuit")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestServer_UnknownRouteReturns404(t *testing.T) {
	provider := &fakeProvider{circuit: map[string]string{}}
	cfg := DefaultConfig()
	cfg.Port = freePort(t)

	srv, err := New(provider, cfg)
	require.NoError(t, err)
	go srv.Start()
	defer srv.Shutdown(context.Background())

	waitForServer(t, "http://"+srv.Addr()+"/healthz")

	resp, err := http.Get("http://" + srv.Addr() + "/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err := http.Get(url); err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never became ready", url)
}
