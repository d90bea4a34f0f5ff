package middleware

import (
	"crypto/tls"
	"net/http"
)

// TLSConfig returns a middleware that installs a TLS configuration on the
// transport. APICs commonly run with self-signed fabric certificates, so
// callers need a hook for custom roots or, in lab setups, for disabling
// verification entirely.
func TLSConfig(config *tls.Config) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		transport, ok := next.(*http.Transport)
		if !ok {
			defaultTransport, ok := http.DefaultTransport.(*http.Transport)
			if !ok {
				// Should never happen, but handle gracefully
				return next
			}
			transport = defaultTransport.Clone()
			transport.ForceAttemptHTTP2 = true
		} else {
			transport = transport.Clone()
		}

		transport.TLSClientConfig = config

		return transport
	}
}

// InsecureSkipVerify returns a TLS config that skips certificate
// verification. Only for lab controllers with self-signed certificates.
func InsecureSkipVerify() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // Opt-in for lab environments
	}
}
