package apic

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
)

// Error taxonomy. Every error returned by the public API is marked with
// exactly one sentinel from the layer it originated in, so callers can tell
// bad credentials from a dead network from controller garbage with
// errors.Is, while the full cause chain stays attached for logging.
var (
	// ErrInvalidCredentials marks a login the controller rejected. Never
	// retried automatically: retrying bad credentials risks account lockout.
	ErrInvalidCredentials = errors.New("controller rejected the supplied credentials")

	// ErrControllerUnreachable marks a login attempt that never reached the
	// controller (DNS failure, connection refused, timeout during login).
	ErrControllerUnreachable = errors.New("controller unreachable")

	// ErrUnexpectedResponse marks a controller response that does not match
	// the expected protocol (unexpected status, missing token, bad JSON).
	ErrUnexpectedResponse = errors.New("unexpected controller response")

	// ErrTransport marks a network-level failure on a data request.
	ErrTransport = errors.New("transport failure")

	// ErrTimeout marks a data request that exceeded the configured timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrAuthRejected marks a data request the controller rejected for
	// authentication twice in a row: once on the cached session and again
	// after a forced re-authentication.
	ErrAuthRejected = errors.New("authentication rejected after re-login")

	// ErrMalformedEnvelope marks a response body that is not a valid imdata
	// envelope. Never degraded to an empty result: a partial decode could be
	// mistaken for "no matching objects".
	ErrMalformedEnvelope = errors.New("malformed response envelope")
)

// markTransport wraps a data-request failure with either ErrTimeout or
// ErrTransport depending on whether the cause is a timeout.
func markTransport(err error, msg string) error {
	if isTimeout(err) {
		return errors.Mark(errors.Wrap(err, msg), ErrTimeout)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrTransport)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
