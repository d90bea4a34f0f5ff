// Package ratelimit constructs token-bucket rate limiters for controller
// requests.
package ratelimit

import "golang.org/x/time/rate"

// New creates a rate limiter allowing requestsPerMinute sustained requests.
// Tokens replenish continuously at requestsPerMinute/60 per second; the burst
// capacity covers one minute of traffic so short spikes are not delayed.
// APIC enforces per-session request limits server-side, so staying under them
// client-side avoids 429-style throttling responses.
func New(requestsPerMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
}
