// Package tunnel exposes the bridge listener on a remote SSH gateway,
// the equivalent of `ssh -R`, using golang.org/x/crypto/ssh.  Clients
// that connect to the gateway port reach the bridge as if they had
// connected to it directly.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted connection to a gateway that can accept
// connections on the bridge's behalf.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Listen asks the gateway to accept TCP connections on
	// bindAddr:port and deliver them through the tunnel.
	Listen(bindAddr string, port int) (net.Listener, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
