package config

import (
	"runtime"
	"time"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultBaud is the serial line speed.
	DefaultBaud = 115200

	// DefaultDataBits, DefaultParity and DefaultStopBits give 8N1.
	DefaultDataBits = 8
	DefaultParity   = "N"
	DefaultStopBits = "1"

	// DefaultListenAddress binds every interface, matching the
	// behaviour of a serial device server.
	DefaultListenAddress = "0.0.0.0"

	// DefaultListenPort is the TCP port clients connect to.
	DefaultListenPort = 5000

	// DefaultPollInterval bounds how long one serial read waits for
	// data.  It is also the worst-case delay before the serial side of
	// a relay notices cancellation.
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultSSHKeepAlive is the interval between SSH keepalive
	// requests when the bridge is exposed through a gateway.
	DefaultSSHKeepAlive = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for an in-flight
	// session to finish after cancellation.
	DefaultGracePeriod = 5 * time.Second
)

// DefaultDevice returns the serial device used when none is given.
func DefaultDevice() string {
	if runtime.GOOS == "windows" {
		return "COM7"
	}
	return "/dev/ttyUSB0"
}
