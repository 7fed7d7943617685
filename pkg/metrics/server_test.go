package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesMetrics(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ServerConfig{})
	assert.Equal(t, 9090, srv.Port())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := fmt.Sprintf("http://%s", ln.Addr())

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(base + "/healthz")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestNoopServerMetrics(t *testing.T) {
	m := NewNoopServerMetrics()
	assert.NotPanics(t, func() {
		m.RecordRequest("GET", "OK", "", time.Second)
		m.RecordRequestStart("GET")
		m.RecordRequestEnd("GET")
		m.RecordBytesTransferred(DirectionIn, 10)
		m.SetActiveConnections(1)
		m.SetBusyWorkers(1)
		m.RecordConnectionAccepted()
		m.RecordConnectionClosed()
		m.RecordConnectionForceClosed()
	})
}

func TestNoopStorageMetrics(t *testing.T) {
	m := NewNoopStorageMetrics()
	assert.NotPanics(t, func() {
		m.RecordOperation("read", time.Millisecond, nil)
		m.RecordBytes("read", 10)
	})
}
