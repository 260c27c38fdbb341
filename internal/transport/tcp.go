package transport

import (
	"context"
	"net"
	"time"

	ncerr "ser2tcp/internal/errors"
)

// TCPListener binds a local TCP socket.
type TCPListener struct {
	Address   string        // host:port
	KeepAlive time.Duration // keepalive period for accepted clients; 0 = OS default
}

// Listen binds Address.
func (l *TCPListener) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: l.KeepAlive}
	ln, err := lc.Listen(ctx, "tcp", l.Address)
	if err != nil {
		return nil, &ncerr.BindError{Addr: l.Address, Err: err}
	}
	return ln, nil
}

// Close is a no-op for TCP.
func (l *TCPListener) Close() error { return nil }

func (l *TCPListener) String() string { return "tcp://" + l.Address }
