package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scratchpad/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRun(t *testing.T) {
	var got protocol.RunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, protocol.Decode(data, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"runId":"run_1","logs":[{"type":"log","content":"hi","line":1}],"outcome":"completed","durationMs":3}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	resp, err := c.Run(context.Background(), protocol.RunRequest{Source: "console.log('hi')", TimeoutMs: 500})

	require.NoError(t, err)
	assert.Equal(t, "console.log('hi')", got.Source)
	assert.Equal(t, int64(500), got.TimeoutMs)
	assert.Equal(t, "run_1", resp.RunID)
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, "hi", resp.Logs[0].Content)
	assert.Equal(t, "completed", resp.Outcome)
}

func TestRunAPIError(t *testing.T) {
	srv, hits := serve(t, http.StatusBadRequest, `{"error":"invalid run request: source too large"}`)
	c := New(Options{BaseURL: srv.URL})

	for range 5 {
		_, err := c.Run(context.Background(), protocol.RunRequest{Source: "x"})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Contains(t, apiErr.Message, "source too large")
	}

	assert.Equal(t, int32(5), hits.Load())
	assert.Equal(t, resilience.StateClosed, c.breaker.State())
}

func TestBreakerOpensOnServerFaults(t *testing.T) {
	srv, hits := serve(t, http.StatusInternalServerError, `{"error":"boom"}`)
	c := New(Options{BaseURL: srv.URL})

	for range 3 {
		_, err := c.Run(context.Background(), protocol.RunRequest{Source: "x"})
		require.Error(t, err)
	}

	_, err := c.Run(context.Background(), protocol.RunRequest{Source: "x"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHealth(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"status":"healthy"}`)
	assert.NoError(t, New(Options{BaseURL: srv.URL}).Health(context.Background()))
}

func TestUnreachable(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	err := New(Options{BaseURL: url}).Health(context.Background())
	assert.Error(t, err)
}
