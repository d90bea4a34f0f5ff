package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

// AcquireFunc obtains a fresh session from the controller. prev is the
// session being replaced (nil on first login), letting implementations
// attempt a cheap refresh before falling back to a full login. It must not
// retain prev.
type AcquireFunc func(ctx context.Context, prev *Session) (*Session, error)

// Manager caches the current session and coordinates its renewal.
//
// Renewal is single-flight: when several callers observe a missing or
// expired session at once, exactly one acquire runs and every caller
// receives its result. A caller that gives up waiting (context canceled)
// does not cancel the in-flight acquire; the result still lands in the
// cache for the next caller.
type Manager struct {
	acquire AcquireFunc
	margin  time.Duration
	timeout time.Duration

	mu      sync.Mutex
	current *Session

	group singleflight.Group
}

// acquireKey is the singleflight key. There is one session per Manager, so
// one key suffices.
const acquireKey = "acquire"

// NewManager creates a Manager. margin is subtracted from the advertised
// validity when judging usability; timeout bounds each detached acquire
// attempt.
func NewManager(acquire AcquireFunc, margin, timeout time.Duration) *Manager {
	return &Manager{
		acquire: acquire,
		margin:  margin,
		timeout: timeout,
	}
}

// Current returns the cached session without triggering renewal. It may be
// nil or expired; callers that need a usable session use Get.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Get returns the cached session if it is still usable, renewing it
// otherwise. Concurrent callers share one renewal.
func (m *Manager) Get(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()

	if cur.Usable(time.Now(), m.margin) {
		return cur, nil
	}

	ch := m.group.DoChan(acquireKey, func() (any, error) {
		// Re-check under the flight: a renewal that completed between the
		// caller's staleness check and this flight starting must not trigger
		// another login.
		m.mu.Lock()
		prev := m.current
		m.mu.Unlock()
		if prev.Usable(time.Now(), m.margin) {
			return prev, nil
		}

		// Detach from the triggering caller so an abandoned wait cannot
		// cancel a login that other callers depend on. The acquire gets its
		// own deadline instead.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		s, err := m.acquire(actx, prev)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.current = s
		m.mu.Unlock()

		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		s, ok := res.Val.(*Session)
		if !ok {
			return nil, errors.AssertionFailedf("unexpected singleflight value of type %T", res.Val)
		}
		return s, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for session")
	}
}

// Invalidate drops the cached session so the next Get re-authenticates, but
// only if used is still the cached one: a request that failed on an old
// session must not discard a replacement installed by a concurrent renewal.
func (m *Manager) Invalidate(used *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == used {
		m.current = nil
	}
}
