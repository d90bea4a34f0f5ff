package apic

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fabriclab/go-apic/internal/httpclient"
	"github.com/fabriclab/go-apic/internal/middleware"
	"github.com/fabriclab/go-apic/internal/ratelimit"
	"github.com/fabriclab/go-apic/internal/session"
	"github.com/fabriclab/go-apic/observability"
)

const (
	// DefaultRateLimit is the default client-side rate limit (requests per minute).
	DefaultRateLimit = 400

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRefreshMargin is how long before the advertised session expiry
	// the client renews proactively.
	DefaultRefreshMargin = 30 * time.Second
)

// Client is an authenticated connection to one APIC. All state is scoped to
// the Client instance, so independent Clients to different controllers
// coexist in one process. A Client is safe for concurrent use; any number of
// queries may be in flight at once.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	http     *httpclient.Client
	sessions *session.Manager
	logger   observability.Logger
	metrics  observability.MetricsRecorder
}

// ClientConfig holds configuration for an APIC client.
type ClientConfig struct {
	// ControllerURL is the base URL of the APIC (e.g. "https://apic.example.net").
	ControllerURL string

	// Username and Password authenticate against the controller's local or
	// remote AAA. They are held for session renewal and never logged.
	Username string
	Password string

	// HTTPClient is the HTTP client to use (optional). When set, Timeout and
	// InsecureSkipVerify are the caller's responsibility.
	HTTPClient *http.Client

	// InsecureSkipVerify disables TLS certificate verification for
	// controllers with self-signed fabric certificates.
	InsecureSkipVerify bool

	// RateLimitPerMinute sets the client-side rate limit (defaults to 400).
	// Negative disables rate limiting.
	RateLimitPerMinute int

	// Timeout sets the per-request timeout (defaults to 30s).
	Timeout time.Duration

	// RefreshMargin sets how long before its advertised expiry a session is
	// renewed (defaults to 30s).
	RefreshMargin time.Duration

	// Logger receives structured client events (optional, defaults to no-op).
	Logger observability.Logger

	// Metrics receives client metrics (optional, defaults to no-op).
	Metrics observability.MetricsRecorder
}

// New creates a client and performs the first login eagerly, so bad
// credentials or an unreachable controller surface at construction rather
// than on first use.
func New(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.ControllerURL == "" {
		return nil, errors.New("controller URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("username and password are required")
	}

	baseURL, err := url.Parse(cfg.ControllerURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid controller URL")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	margin := cfg.RefreshMargin
	if margin == 0 {
		margin = DefaultRefreshMargin
	}
	rateLimitPerMinute := cfg.RateLimitPerMinute
	if rateLimitPerMinute == 0 {
		rateLimitPerMinute = DefaultRateLimit
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NoopMetricsRecorder()
	}

	mw := []httpclient.Middleware{
		middleware.Observability(logger, metrics),
	}
	if rateLimitPerMinute > 0 {
		mw = append(mw, middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: ratelimit.New(rateLimitPerMinute),
			Logger:  logger,
			Metrics: metrics,
		}))
	}
	if cfg.InsecureSkipVerify && cfg.HTTPClient == nil {
		mw = append(mw, middleware.TLSConfig(middleware.InsecureSkipVerify()))
	}

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(cfg.HTTPClient),
		httpclient.WithMiddleware(mw...),
	}
	if cfg.HTTPClient == nil {
		opts = append(opts, httpclient.WithTimeout(timeout))
	}

	c := &Client{
		baseURL:  baseURL,
		username: cfg.Username,
		password: cfg.Password,
		http:     httpclient.New(opts...),
		logger:   logger,
		metrics:  metrics,
	}
	c.sessions = session.NewManager(c.acquireSession, margin, timeout)

	if _, err := c.sessions.Get(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Close ends the session with a best-effort logout. The client must not be
// used afterwards.
func (c *Client) Close(ctx context.Context) error {
	return c.logout(ctx)
}

// GetInstances returns all instances of the given class, in controller
// order.
func (c *Client) GetInstances(ctx context.Context, className string, qs QuerySettings) ([]*ManagedObject, error) {
	spec, err := buildClassQuery(className, qs)
	if err != nil {
		return nil, err
	}

	body, err := c.execute(ctx, http.MethodGet, spec, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "listing instances of %s", className)
	}
	return decodeEnvelope(body)
}

// GetSubtree returns the managed object with the given DN (and, depending on
// the query settings, parts of its subtree).
func (c *Client) GetSubtree(ctx context.Context, dn string, qs QuerySettings) ([]*ManagedObject, error) {
	spec, err := buildDNQuery(dn, qs)
	if err != nil {
		return nil, err
	}

	body, err := c.execute(ctx, http.MethodGet, spec, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", dn)
	}
	return decodeEnvelope(body)
}

// ApplyChange creates or modifies the managed object tree rooted at mo.
// Whether a multi-node tree applies atomically is the controller's call; the
// client submits the whole tree in one request and reports the controller's
// verdict.
func (c *Client) ApplyChange(ctx context.Context, mo *ManagedObject) error {
	payload, err := encodeChange(mo)
	if err != nil {
		return err
	}

	spec, err := buildDNQuery(mo.DN(), QuerySettings{})
	if err != nil {
		return err
	}

	if _, err := c.execute(ctx, http.MethodPost, spec, payload); err != nil {
		return errors.Wrapf(err, "applying change to %s", mo.DN())
	}
	return nil
}

// Delete removes the managed object with the given DN and its subtree.
func (c *Client) Delete(ctx context.Context, dn string) error {
	spec, err := buildDNQuery(dn, QuerySettings{})
	if err != nil {
		return err
	}

	if _, err := c.execute(ctx, http.MethodDelete, spec, nil); err != nil {
		return errors.Wrapf(err, "deleting %s", dn)
	}
	return nil
}

// execute sends one authenticated request. On an authentication rejection it
// invalidates the session and retries exactly once with a fresh one; a
// second rejection surfaces ErrAuthRejected rather than looping against a
// misconfigured controller.
func (c *Client) execute(ctx context.Context, method string, spec requestSpec, payload []byte) ([]byte, error) {
	s, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.send(ctx, method, spec, payload, s)
	if err != nil {
		return nil, err
	}
	if status != http.StatusForbidden {
		return checkStatus(status, body)
	}

	// The controller disagrees with our validity estimate. Drop the session
	// and retry once with a fresh one.
	c.sessions.Invalidate(s)
	c.logger.Debug("session rejected by controller, re-authenticating",
		observability.Field{Key: "path", Value: spec.path},
	)

	s, err = c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err = c.send(ctx, method, spec, payload, s)
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden {
		c.metrics.RecordError(method+" "+middleware.NormalizePath(spec.path), "AuthRejected")
		return nil, errors.Mark(
			errors.Newf("%s %s rejected twice despite re-authentication", method, spec.path),
			ErrAuthRejected,
		)
	}
	return checkStatus(status, body)
}

// send performs one HTTP exchange and reads the whole body.
func (c *Client) send(
	ctx context.Context,
	method string,
	spec requestSpec,
	payload []byte,
	s *session.Session,
) (int, []byte, error) {
	u := c.baseURL.JoinPath(spec.path)
	if len(spec.query) > 0 {
		u.RawQuery = spec.query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, nil, errors.Wrap(err, "assembling request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	attachSession(req, s)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, markTransport(err, "sending request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, markTransport(err, "reading response body")
	}
	return resp.StatusCode, body, nil
}

// checkStatus converts a non-auth controller status into a result or error.
func checkStatus(status int, body []byte) ([]byte, error) {
	if status != http.StatusOK {
		return nil, errors.Mark(
			errors.Newf("controller returned status %d", status),
			ErrUnexpectedResponse,
		)
	}
	return body, nil
}
