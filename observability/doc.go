// Package observability provides the logging and metrics interfaces used by
// the go-apic client.
//
// The client never binds to a concrete logging or metrics library. Instead,
// callers supply implementations of Logger and MetricsRecorder through
// apic.ClientConfig:
//
//	client, err := apic.New(ctx, &apic.ClientConfig{
//		ControllerURL: "https://apic.example.net",
//		Username:      "admin",
//		Password:      password,
//		Logger:        myLogger,  // implements observability.Logger
//		Metrics:       myMetrics, // implements observability.MetricsRecorder
//	})
//
// # Logger
//
// Logger supports structured logging with key-value Fields at Debug, Info,
// Warn and Error levels. Credentials and session tokens are never passed as
// field values by the client.
//
// # MetricsRecorder
//
// MetricsRecorder tracks HTTP request outcomes, rate limit waits, session
// renewals, and error occurrences.
//
// # Default behavior
//
// When no implementation is provided the client falls back to no-op
// implementations that discard every event, so observability carries zero
// overhead unless it is wanted.
package observability
