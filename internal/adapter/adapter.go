// Package adapter fixes the contract between the core and the external
// messaging-network client. The core drives the client through this interface
// only; it never touches the underlying transport.
package adapter

import "context"

// Handlers receives the client's lifecycle events. Callbacks are invoked from
// the adapter's own goroutine; implementations must be safe for that.
type Handlers struct {
	PairingCode  func(code string)
	Ready        func()
	AuthFailure  func(reason string)
	Disconnected func(reason string)
}

// Client is one tenant's connection to the messaging network. A Client is
// owned exclusively by a single session and is never shared.
type Client interface {
	// Initialize starts (or restores) the connection. Idempotent per tenant.
	Initialize(ctx context.Context) error
	// Send delivers one message to one addressed recipient.
	Send(ctx context.Context, to, body string) error
	// Destroy tears the connection down, best effort.
	Destroy(ctx context.Context) error
}

// Factory builds the Client for a tenant. The registry calls it exactly once
// per live session.
type Factory func(tenantID string, h Handlers) (Client, error)
