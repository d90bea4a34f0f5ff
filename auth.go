package apic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fabriclab/go-apic/internal/session"
	"github.com/fabriclab/go-apic/observability"
)

const (
	loginPath   = "/api/aaaLogin.json"
	refreshPath = "/api/aaaRefresh.json"
	logoutPath  = "/api/aaaLogout.json"

	// defaultSessionValidity is assumed when the controller does not
	// advertise a refresh timeout.
	defaultSessionValidity = 600 * time.Second
)

// aaaUserBody is the login/logout request payload. The password is only ever
// marshalled here; it is never logged and never attached to errors.
type aaaUserBody struct {
	AAAUser struct {
		Attributes map[string]string `json:"attributes"`
	} `json:"aaaUser"`
}

func newAAAUserBody(username, password string) aaaUserBody {
	var body aaaUserBody
	body.AAAUser.Attributes = map[string]string{"name": username}
	if password != "" {
		body.AAAUser.Attributes["pwd"] = password
	}
	return body
}

// acquireSession is the session.Manager acquire callback: refresh the
// previous session when one exists, falling back to a full login.
func (c *Client) acquireSession(ctx context.Context, prev *session.Session) (*session.Session, error) {
	start := time.Now()
	reason := "expired"
	if prev == nil {
		reason = "initial"
	}

	if prev != nil {
		if s, err := c.refreshSession(ctx, prev); err == nil {
			c.metrics.RecordSessionRenewal(reason, time.Since(start))
			c.logger.Debug("session refreshed",
				observability.Field{Key: "valid_for", Value: s.ValidFor},
			)
			return s, nil
		}
		// Refresh is best-effort; a rejected or unreachable refresh falls
		// through to a full login, which produces the authoritative error.
		c.logger.Debug("session refresh failed, falling back to login")
	}

	s, err := c.login(ctx)
	if err != nil {
		c.metrics.RecordError("session_renewal", "AuthError")
		return nil, err
	}

	c.metrics.RecordSessionRenewal(reason, time.Since(start))
	c.logger.Debug("session established",
		observability.Field{Key: "valid_for", Value: s.ValidFor},
	)
	return s, nil
}

// login authenticates with username and password and returns a new session.
func (c *Client) login(ctx context.Context) (*session.Session, error) {
	payload, err := json.Marshal(newAAAUserBody(c.username, c.password))
	if err != nil {
		return nil, errors.Wrap(err, "encoding login request")
	}

	resp, body, err := c.authRequest(ctx, http.MethodPost, loginPath, payload, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "login request"), ErrControllerUnreachable)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parsing
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, errors.Mark(
			errors.Newf("login rejected with status %d", resp.StatusCode),
			ErrInvalidCredentials,
		)
	default:
		return nil, errors.Mark(
			errors.Newf("login returned status %d", resp.StatusCode),
			ErrUnexpectedResponse,
		)
	}

	s, err := parseAuthEnvelope(body, nil)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// refreshSession extends the given session via the refresh endpoint. Fields
// the controller leaves empty in the refresh envelope keep their previous
// values.
func (c *Client) refreshSession(ctx context.Context, prev *session.Session) (*session.Session, error) {
	resp, body, err := c.authRequest(ctx, http.MethodGet, refreshPath, nil, prev)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "refresh request"), ErrControllerUnreachable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Mark(
			errors.Newf("refresh returned status %d", resp.StatusCode),
			ErrUnexpectedResponse,
		)
	}
	return parseAuthEnvelope(body, prev)
}

// logout ends the current session, if any. Rejections are ignored: the
// session dies with the process either way.
func (c *Client) logout(ctx context.Context) error {
	current := c.sessions.Current()
	if current == nil {
		return nil
	}

	payload, err := json.Marshal(newAAAUserBody(c.username, ""))
	if err != nil {
		return errors.Wrap(err, "encoding logout request")
	}

	resp, _, err := c.authRequest(ctx, http.MethodPost, logoutPath, payload, current)
	if err != nil {
		return markTransport(err, "logout request")
	}
	c.sessions.Invalidate(current)

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("logout rejected by controller",
			observability.Field{Key: "status", Value: resp.StatusCode},
		)
	}
	return nil
}

// authRequest performs a request against an authentication endpoint. The
// response body is fully read and the connection released before returning.
func (c *Client) authRequest(
	ctx context.Context,
	method, path string,
	payload []byte,
	s *session.Session,
) (*http.Response, []byte, error) {
	u := c.baseURL.JoinPath(path)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, nil, errors.Wrap(err, "assembling request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s != nil {
		attachSession(req, s)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading response body")
	}
	return resp, body, nil
}

// attachSession adds the session token to a request per the controller's
// convention: an APIC-cookie cookie, plus the APIC-challenge header when the
// controller issued one.
func attachSession(req *http.Request, s *session.Session) {
	req.AddCookie(&http.Cookie{Name: "APIC-cookie", Value: s.Token})
	if s.Challenge != "" {
		req.Header.Set("APIC-challenge", s.Challenge)
	}
}

// parseAuthEnvelope extracts the session from an aaaLogin/aaaRefresh
// envelope. prev supplies fallback values for fields a refresh response
// leaves empty.
func parseAuthEnvelope(body []byte, prev *session.Session) (*session.Session, error) {
	objects, err := decodeEnvelope(body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "authentication response"), ErrUnexpectedResponse)
	}
	if len(objects) == 0 || objects[0].ClassName != "aaaLogin" {
		return nil, errors.Mark(
			errors.New("authentication response is missing the aaaLogin object"),
			ErrUnexpectedResponse,
		)
	}
	attrs := objects[0].Attributes

	token := attrs["token"]
	challenge := attrs["urlToken"]
	validFor := parseValidity(attrs["refreshTimeoutSeconds"])

	if prev != nil {
		if token == "" {
			token = prev.Token
		}
		if challenge == "" {
			challenge = prev.Challenge
		}
	}
	if token == "" {
		return nil, errors.Mark(
			errors.New("authentication response is missing the session token"),
			ErrUnexpectedResponse,
		)
	}

	return &session.Session{
		Token:      token,
		Challenge:  challenge,
		ObtainedAt: time.Now(),
		ValidFor:   validFor,
	}, nil
}

func parseValidity(raw string) time.Duration {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultSessionValidity
	}
	return time.Duration(seconds) * time.Second
}
