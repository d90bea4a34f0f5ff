// Package testutil provides a mock APIC controller for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Controller is an in-process mock APIC. It implements the aaaLogin,
// aaaRefresh and aaaLogout endpoints, issues sequential tokens ("tok1",
// "tok2", ...), validates the APIC-cookie on data requests, and serves
// registered imdata fixtures.
type Controller struct {
	t   *testing.T
	srv *httptest.Server

	mu             sync.Mutex
	loginCount     int
	refreshCount   int
	logoutCount    int
	requestCount   int
	validTokens    map[string]bool
	sessionTimeout int
	rejectLogins   bool
	rejectRefresh  bool
	forceReject    int // reject this many data requests with 403 regardless of token
	revokeAfter    int // revoke all tokens after this many data requests (0 = never)
	handlers       map[string]http.HandlerFunc
}

// NewController starts a mock APIC with a default 600s session timeout.
// The server is shut down automatically when the test finishes.
func NewController(t *testing.T) *Controller {
	t.Helper()

	c := &Controller{
		t:              t,
		validTokens:    make(map[string]bool),
		sessionTimeout: 600,
		handlers:       make(map[string]http.HandlerFunc),
	}
	c.srv = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.srv.Close)
	return c
}

// URL returns the controller's base URL.
func (c *Controller) URL() string {
	return c.srv.URL
}

// SetSessionTimeout sets the refreshTimeoutSeconds advertised at login.
func (c *Controller) SetSessionTimeout(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionTimeout = seconds
}

// RejectLogins makes aaaLogin answer 403 (bad credentials).
func (c *Controller) RejectLogins(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectLogins = reject
}

// RejectRefresh makes aaaRefresh answer 403, forcing a full login fallback.
func (c *Controller) RejectRefresh(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectRefresh = reject
}

// ForceReject makes the next n data requests answer 403 even when the
// presented token is valid, simulating a controller whose revocation policy
// disagrees with the client's validity estimate.
func (c *Controller) ForceReject(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceReject = n
}

// RevokeAfter revokes every issued token once n data requests have been
// served, simulating controller-side revocation inside the local validity
// window.
func (c *Controller) RevokeAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revokeAfter = n
}

// RevokeAll immediately invalidates every issued token.
func (c *Controller) RevokeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tok := range c.validTokens {
		c.validTokens[tok] = false
	}
}

// Handle registers a handler for a data path (e.g. "/api/class/faultInst.json").
// The handler runs only after cookie validation has passed.
func (c *Controller) Handle(path string, handler http.HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[path] = handler
}

// HandleJSON registers a fixed JSON body for a data path.
func (c *Controller) HandleJSON(path, body string) {
	c.Handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

// LoginCount returns the number of aaaLogin requests served.
func (c *Controller) LoginCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginCount
}

// RefreshCount returns the number of aaaRefresh requests served.
func (c *Controller) RefreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshCount
}

// LogoutCount returns the number of aaaLogout requests served.
func (c *Controller) LogoutCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logoutCount
}

func (c *Controller) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/aaaLogin.json":
		c.serveLogin(w, r)
	case "/api/aaaRefresh.json":
		c.serveRefresh(w, r)
	case "/api/aaaLogout.json":
		c.serveLogout(w, r)
	default:
		c.serveData(w, r)
	}
}

func (c *Controller) serveLogin(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loginCount++

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AAAUser struct {
			Attributes map[string]string `json:"attributes"`
		} `json:"aaaUser"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if c.rejectLogins || req.AAAUser.Attributes["name"] == "" || req.AAAUser.Attributes["pwd"] == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := fmt.Sprintf("tok%d", c.loginCount)
	c.validTokens[token] = true
	c.writeLoginEnvelope(w, token)
}

func (c *Controller) serveRefresh(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshCount++

	token := cookieToken(r)
	if c.rejectRefresh || token == "" || !c.validTokens[token] {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	// Same session, renewed validity. An empty token field in the refresh
	// envelope means "keep the current token".
	c.writeLoginEnvelope(w, "")
}

func (c *Controller) serveLogout(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logoutCount++

	token := cookieToken(r)
	if token != "" {
		c.validTokens[token] = false
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"imdata":[],"totalCount":"0"}`))
}

func (c *Controller) serveData(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()

	if c.forceReject > 0 {
		c.forceReject--
		c.mu.Unlock()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := cookieToken(r)
	if token == "" || !c.validTokens[token] {
		c.mu.Unlock()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	c.requestCount++
	if c.revokeAfter > 0 && c.requestCount >= c.revokeAfter {
		for tok := range c.validTokens {
			c.validTokens[tok] = false
		}
		c.revokeAfter = 0
	}

	handler, ok := c.handlers[r.URL.Path]
	c.mu.Unlock()

	if !ok {
		c.t.Errorf("unexpected data request path: %s", r.URL.Path)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	handler(w, r)
}

// writeLoginEnvelope writes an aaaLogin imdata envelope. Callers hold c.mu.
func (c *Controller) writeLoginEnvelope(w http.ResponseWriter, token string) {
	envelope := map[string]any{
		"totalCount": "1",
		"imdata": []any{
			map[string]any{
				"aaaLogin": map[string]any{
					"attributes": map[string]string{
						"token":                 token,
						"refreshTimeoutSeconds": fmt.Sprintf("%d", c.sessionTimeout),
					},
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		c.t.Errorf("failed to write login envelope: %v", err)
	}
}

// cookieToken extracts the APIC-cookie value from the request.
func cookieToken(r *http.Request) string {
	for _, cookie := range r.Cookies() {
		if cookie.Name == "APIC-cookie" {
			return cookie.Value
		}
	}
	// Fall back to a raw Cookie header in case the client wrote it by hand.
	header := r.Header.Get("Cookie")
	if idx := strings.Index(header, "APIC-cookie="); idx >= 0 {
		value := header[idx+len("APIC-cookie="):]
		if end := strings.IndexByte(value, ';'); end >= 0 {
			value = value[:end]
		}
		return value
	}
	return ""
}
