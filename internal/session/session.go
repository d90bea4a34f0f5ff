// Package session owns the cached controller session and the single-flight
// logic that renews it.
package session

import (
	"time"
)

// Session is the client's cached view of one authenticated controller
// session. The controller is authoritative; this copy is an estimate and any
// request using it may still be rejected.
type Session struct {
	// Token is the opaque session token (sent as the APIC-cookie value).
	Token string

	// Challenge is the optional per-session challenge token (sent as the
	// APIC-challenge header). Empty when the controller did not issue one.
	Challenge string

	// ObtainedAt is when the client received this session.
	ObtainedAt time.Time

	// ValidFor is the validity duration the controller advertised.
	ValidFor time.Duration
}

// Usable reports whether the session is expected to still be accepted at the
// given time, keeping margin as a safety buffer before the advertised expiry
// so sessions are renewed proactively rather than after a rejection.
func (s *Session) Usable(now time.Time, margin time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Before(s.ObtainedAt.Add(s.ValidFor - margin))
}

// ExpiresAt returns the estimated expiry instant.
func (s *Session) ExpiresAt() time.Time {
	return s.ObtainedAt.Add(s.ValidFor)
}
