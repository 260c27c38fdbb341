// Package config defines the runtime configuration for ser2tcp and
// provides helpers for parsing tunnel specifications and serial line
// settings.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "ser2tcp/internal/errors"
)

// Config holds every tuneable for one bridge process.
type Config struct {
	// ── Serial ───────────────────────────────────────────────────────
	Device   string
	Baud     int
	DataBits int
	Parity   string // N, E, O, M or S
	StopBits string // 1, 1.5 or 2

	// ── Network ──────────────────────────────────────────────────────
	ListenAddress string
	ListenPort    int
	KeepAlive     time.Duration // TCP keepalive on accepted clients; 0 = OS default

	// ── Behaviour ────────────────────────────────────────────────────
	PollInterval     time.Duration
	ExitOnDeviceLoss bool

	// ── SSH exposure ─────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// New returns a Config populated with the defaults.
func New() *Config {
	return &Config{
		Device:        DefaultDevice(),
		Baud:          DefaultBaud,
		DataBits:      DefaultDataBits,
		Parity:        DefaultParity,
		StopBits:      DefaultStopBits,
		ListenAddress: DefaultListenAddress,
		ListenPort:    DefaultListenPort,
		PollInterval:  DefaultPollInterval,
	}
}

// ListenAddr returns the host:port the bridge binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Serial line settings ─────────────────────────────────────────────

// NormalizeParity maps the accepted spellings to a single letter.
func NormalizeParity(p string) (string, bool) {
	switch strings.ToLower(p) {
	case "n", "none", "":
		return "N", true
	case "e", "even":
		return "E", true
	case "o", "odd":
		return "O", true
	case "m", "mark":
		return "M", true
	case "s", "space":
		return "S", true
	}
	return "", false
}

func validStopBits(s string) bool {
	return s == "1" || s == "1.5" || s == "2"
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is usable.  It never touches
// the device or the network, so a bad config is rejected before any
// I/O is attempted.  Parity is normalised in place.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Device) == "" {
		return &ncerr.ConfigError{
			Field:   "port",
			Message: "serial device must be non-empty",
			Hint:    "run with --list to see available serial ports",
		}
	}
	if c.Baud <= 0 {
		return &ncerr.ConfigError{
			Field:   "baud",
			Value:   c.Baud,
			Message: "baud rate must be positive",
			Hint:    "common rates are 9600, 57600 and 115200",
		}
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return &ncerr.ConfigError{
			Field:   "tcp-port",
			Value:   c.ListenPort,
			Message: "TCP port must be between 1 and 65535",
		}
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return &ncerr.ConfigError{
			Field:   "data-bits",
			Value:   c.DataBits,
			Message: "data bits must be between 5 and 8",
		}
	}
	parity, ok := NormalizeParity(c.Parity)
	if !ok {
		return &ncerr.ConfigError{
			Field:   "parity",
			Value:   c.Parity,
			Message: "unsupported parity",
			Hint:    "use one of N, E, O, M, S",
		}
	}
	c.Parity = parity
	if !validStopBits(c.StopBits) {
		return &ncerr.ConfigError{
			Field:   "stop-bits",
			Value:   c.StopBits,
			Message: "unsupported stop bits",
			Hint:    "use 1, 1.5 or 2",
		}
	}
	if c.PollInterval <= 0 {
		return &ncerr.ConfigError{
			Field:   "poll-interval",
			Value:   c.PollInterval,
			Message: "poll interval must be positive",
		}
	}
	if c.KeepAlive < 0 {
		return &ncerr.ConfigError{
			Field:   "keepalive",
			Value:   c.KeepAlive,
			Message: "keepalive must not be negative",
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "tunnel host is required",
			Hint:    "expected [user@]host[:port]",
		}
	}
	if !c.TunnelEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Message: "SSH options given without a tunnel",
			Hint:    "add -T user@gateway to expose the bridge through SSH",
		}
	}

	return nil
}
