// Package transport produces the listening socket the bridge accepts
// clients on.  A listener is either a plain TCP socket on this host or
// a port on a remote SSH gateway forwarded back through a tunnel; the
// bridge treats both the same.
package transport

import (
	"context"
	"net"
)

// Listener creates the bridge's [net.Listener].
type Listener interface {
	// Listen binds and returns the listener.  Failures are returned as
	// *errors.BindError or *errors.SSHError and are never retried.
	Listen(ctx context.Context) (net.Listener, error)

	// Close releases long-lived resources behind the listener (e.g. an
	// SSH connection).  Plain TCP returns nil.
	Close() error

	// String describes where clients should connect, for log messages.
	String() string
}
