package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	ncerr "ser2tcp/internal/errors"
	"ser2tcp/tunnel"
	"ser2tcp/util"
)

// SSHListener exposes the bridge on a port of a remote SSH gateway.
// The tunnel is connected on Listen and torn down on Close.
type SSHListener struct {
	BindAddr string // address on the gateway
	Port     int    // port on the gateway; 0 lets the gateway choose

	tunnel    tunnel.Tunnel
	config    *tunnel.SSHConfig
	logger    *util.Logger
	mu        sync.Mutex
	connected bool
}

// NewSSHListener creates a listener that forwards bindAddr:port on the
// gateway described by cfg.
func NewSSHListener(cfg *tunnel.SSHConfig, bindAddr string, port int, logger *util.Logger) *SSHListener {
	return newSSHListener(tunnel.NewSSHTunnel(cfg, logger), cfg, bindAddr, port, logger)
}

func newSSHListener(t tunnel.Tunnel, cfg *tunnel.SSHConfig, bindAddr string, port int, logger *util.Logger) *SSHListener {
	return &SSHListener{
		BindAddr: bindAddr,
		Port:     port,
		tunnel:   t,
		config:   cfg,
		logger:   logger,
	}
}

func (l *SSHListener) connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}

	l.logger.Verbose("establishing SSH tunnel to %s@%s",
		l.config.User, util.FormatAddr(l.config.Host, l.config.Port))

	if err := l.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}

	l.connected = true
	l.logger.Verbose("SSH tunnel established")
	return nil
}

// Listen connects the tunnel if needed and requests the remote forward.
func (l *SSHListener) Listen(ctx context.Context) (net.Listener, error) {
	if err := l.connect(ctx); err != nil {
		return nil, err
	}
	ln, err := l.tunnel.Listen(l.BindAddr, l.Port)
	if err != nil {
		return nil, &ncerr.BindError{Addr: l.String(), Err: err}
	}
	return ln, nil
}

// Close tears down the tunnel.
func (l *SSHListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		l.connected = false
		return l.tunnel.Close()
	}
	return nil
}

func (l *SSHListener) String() string {
	return fmt.Sprintf("ssh://%s@%s (remote %s)", l.config.User,
		util.FormatAddr(l.config.Host, l.config.Port), util.FormatAddr(l.BindAddr, l.Port))
}
