package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/config"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Sandbox.GraceMS = 10
	cfg.Sandbox.PollMS = 5
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 2
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestRunEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"source":"console.log('hi')"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"hi"`)
	assert.NotEmpty(t, w.Header().Get(tracing.TraceHeader))
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, testConfig())

	codes := make([]int, 0, 4)
	for range 4 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		srv.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = false
	srv := newTestServer(t, cfg)

	for range 5 {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.Origins = []string{"https://pad.example.com"}
	srv := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	req.Header.Set("Origin", "https://pad.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "https://pad.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHostOptions(t *testing.T) {
	cfg := config.Default().Sandbox
	cfg.FetchEnabled = true

	opts := HostOptions(cfg)

	assert.Equal(t, 5*time.Second, opts.Limits.DefaultTimeout)
	assert.Equal(t, 30*time.Second, opts.Limits.MaxTimeout)
	assert.Equal(t, 256*1024, opts.Limits.MaxSourceBytes)
	assert.Equal(t, 1000, opts.Config.LogCapacity)
	assert.True(t, opts.Config.EnableFetch)
	assert.NotNil(t, opts.HTTPClient)
}

func TestInvalidLogLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Level = "loud"

	_, err := NewServer(cfg)
	assert.Error(t, err)
}
