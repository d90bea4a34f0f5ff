package middleware_test

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/fabriclab/go-apic/internal/middleware"
	"github.com/fabriclab/go-apic/observability"
)

// recordingMetrics captures recorded events for assertions.
type recordingMetrics struct {
	mu       sync.Mutex
	requests []string
	limits   []string
	errors   []string
}

func (m *recordingMetrics) RecordHTTPRequest(method, path string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, method+" "+path)
}

func (m *recordingMetrics) RecordSessionRenewal(string, time.Duration) {}

func (m *recordingMetrics) RecordRateLimit(endpoint string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, endpoint)
}

func (m *recordingMetrics) RecordError(operation, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, operation+":"+errorType)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "class query",
			path: "/api/class/faultInst.json",
			want: "/api/class/:class",
		},
		{
			name: "mo query with nested dn",
			path: "/api/mo/uni/tn-EXAMPLE/ap-APP.json",
			want: "/api/mo/:dn",
		},
		{
			name: "login endpoint unchanged",
			path: "/api/aaaLogin.json",
			want: "/api/aaaLogin.json",
		},
		{
			name: "refresh endpoint unchanged",
			path: "/api/aaaRefresh.json",
			want: "/api/aaaRefresh.json",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, middleware.NormalizePath(tt.path))
			// Second call exercises the cache path.
			assert.Equal(t, tt.want, middleware.NormalizePath(tt.path))
		})
	}
}

func TestObservabilityRecordsRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	metrics := &recordingMetrics{}
	transport := middleware.Observability(observability.NoopLogger(), metrics)(http.DefaultTransport)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(srv.URL + "/api/class/fvTenant.json")
	require.NoError(t, err)
	resp.Body.Close()

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Len(t, metrics.requests, 1)
	assert.Equal(t, "GET /api/class/:class", metrics.requests[0])
}

func TestObservabilityNilDefaults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := middleware.Observability(nil, nil)(http.DefaultTransport)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	t.Parallel()

	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := middleware.RateLimit(middleware.RateLimitConfig{
		Limiter: rate.NewLimiter(rate.Limit(100), 10),
	})(http.DefaultTransport)
	client := &http.Client{Transport: transport}

	for i := 0; i < 5; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 5, served)
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := middleware.RateLimit(middleware.RateLimitConfig{})(http.DefaultTransport)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestRateLimitCanceledContext(t *testing.T) {
	t.Parallel()

	limiter := rate.NewLimiter(rate.Limit(0.01), 1)
	// Exhaust the burst so the next request must wait.
	require.True(t, limiter.Allow())

	transport := middleware.RateLimit(middleware.RateLimitConfig{Limiter: limiter})(http.DefaultTransport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://controller.invalid/api/class/fvTenant.json", nil)
	require.NoError(t, err)

	_, err = transport.RoundTrip(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTLSConfigInstalls(t *testing.T) {
	t.Parallel()

	cfg := middleware.InsecureSkipVerify()
	require.True(t, cfg.InsecureSkipVerify)

	wrapped := middleware.TLSConfig(cfg)(http.DefaultTransport)
	transport, ok := wrapped.(*http.Transport)
	require.True(t, ok)
	assert.Same(t, cfg, transport.TLSClientConfig)

	// Self-signed server only works with verification disabled.
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: wrapped}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestTLSConfigNonTransportNext(t *testing.T) {
	t.Parallel()

	next := roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, nil })
	wrapped := middleware.TLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})(next)

	// A non-*http.Transport next falls back to a cloned default transport.
	_, ok := wrapped.(*http.Transport)
	assert.True(t, ok)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
