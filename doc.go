// Package apic is a client library for the Cisco ACI Application Policy
// Infrastructure Controller (APIC) REST API.
//
// A Client wraps one authenticated relationship to one controller. It logs
// in eagerly at construction, keeps the session token fresh across any
// number of concurrent requests (renewing proactively before the advertised
// expiry and reactively when the controller rejects a request), and decodes
// the controller's self-describing object envelopes into ManagedObject
// records that preserve every attribute verbatim.
//
//	client, err := apic.New(ctx, &apic.ClientConfig{
//		ControllerURL:      "https://apic.example.net",
//		Username:           "admin",
//		Password:           password,
//		InsecureSkipVerify: true,
//	})
//	if err != nil {
//		// bad credentials and unreachable controller are distinguishable
//		// via errors.Is(err, apic.ErrInvalidCredentials) etc.
//	}
//	defer client.Close(ctx)
//
//	faults, err := client.GetInstances(ctx, "faultInst", apic.QuerySettings{})
//
// Session renewal is single-flight: when many concurrent requests find the
// session expired at once, exactly one login is sent and all of them share
// its outcome.
//
// Certificate-based authentication and WebSocket event subscription are not
// implemented.
package apic
