package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fabriclab/go-apic/observability"
)

// Observability returns a middleware that logs and records metrics for HTTP
// requests. Request URLs are logged verbatim (they carry no credentials; the
// session cookie travels in a header), but metrics use a normalized path so
// DN and class segments do not blow up cardinality.
func Observability(logger observability.Logger, metrics observability.MetricsRecorder) func(http.RoundTripper) http.RoundTripper {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	if metrics == nil {
		metrics = observability.NoopMetricsRecorder()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return &observabilityTransport{
			next:    next,
			logger:  logger,
			metrics: metrics,
		}
	}
}

type observabilityTransport struct {
	next    http.RoundTripper
	logger  observability.Logger
	metrics observability.MetricsRecorder
}

func (t *observabilityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	t.logger.Debug("http request started",
		observability.Field{Key: "method", Value: req.Method},
		observability.Field{Key: "path", Value: req.URL.Path},
	)

	resp, err := t.next.RoundTrip(req)

	duration := time.Since(start)

	if err != nil {
		t.logger.Error("http request failed",
			observability.Field{Key: "method", Value: req.Method},
			observability.Field{Key: "path", Value: req.URL.Path},
			observability.Field{Key: "duration", Value: duration},
			observability.Field{Key: "error", Value: err.Error()},
		)

		t.metrics.RecordError("http_request", "NetworkError")

		//nolint:wrapcheck // Observability middleware passes errors through unchanged
		return nil, err
	}

	fields := []observability.Field{
		{Key: "method", Value: req.Method},
		{Key: "path", Value: req.URL.Path},
		{Key: "status", Value: resp.StatusCode},
		{Key: "duration", Value: duration},
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Warn("http request completed with error", fields...)
	} else {
		t.logger.Debug("http request completed", fields...)
	}

	t.metrics.RecordHTTPRequest(req.Method, NormalizePath(req.URL.Path), resp.StatusCode, duration)

	return resp, nil
}

// normalizedPathCache caches normalized paths. The set of endpoint shapes is
// tiny, while the set of DNs is unbounded, so the cache is keyed on the raw
// path and only ever holds what the process actually queries.
var normalizedPathCache sync.Map

// NormalizePath collapses the variable segment of APIC endpoints so metrics
// stay low-cardinality:
//
//	/api/class/faultInst.json              -> /api/class/:class
//	/api/mo/uni/tn-EXAMPLE.json            -> /api/mo/:dn
//	/api/aaaLogin.json                     -> /api/aaaLogin.json (unchanged)
func NormalizePath(path string) string {
	if cached, ok := normalizedPathCache.Load(path); ok {
		//nolint:forcetypeassert // Cache only stores strings
		return cached.(string)
	}

	normalized := path
	switch {
	case strings.HasPrefix(path, "/api/class/"):
		normalized = "/api/class/:class"
	case strings.HasPrefix(path, "/api/mo/"):
		normalized = "/api/mo/:dn"
	}

	normalizedPathCache.Store(path, normalized)

	return normalized
}
