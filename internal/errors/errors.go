// Package errors provides domain-specific error types for ser2tcp.
//
// The types split failures into two scopes.  Startup errors (config,
// device open, bind, SSH) terminate the process.  Session errors (serial
// I/O during a relay, network resets) end one client session and are
// never escalated, except for a serial device that has gone away, which
// the bridge can be told to treat as fatal.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrDeviceUnavailable = errors.New("serial device unavailable")
	ErrDeviceIO          = errors.New("serial device I/O error")
	ErrDeviceLost        = errors.New("serial device lost")
	ErrTunnelClosed      = errors.New("tunnel is closed")
	ErrNotConnected      = errors.New("not connected")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "accept", "read", "write"
	Addr      string // peer or listen address
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DeviceError represents a failure on the serial device.  Kind is
// either ErrDeviceUnavailable (open failed) or ErrDeviceIO (read/write
// failed during a session).  Gone is set when the device was closed or
// physically removed, as opposed to a transient I/O failure.
type DeviceError struct {
	Op     string // "open", "read", "write", "close"
	Device string
	Kind   error
	Err    error
	Gone   bool
}

func (e *DeviceError) Error() string {
	s := fmt.Sprintf("serial %s %s: %v", e.Op, e.Device, e.Err)
	if e.Gone {
		s += " (device gone)"
	}
	return s
}

func (e *DeviceError) Unwrap() []error { return []error{e.Kind, e.Err} }

// BindError reports that the bridge could not obtain its listener.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // flag name without dashes
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Unavailable creates a DeviceError for a failed open.
func Unavailable(device string, err error) *DeviceError {
	return &DeviceError{Op: "open", Device: device, Kind: ErrDeviceUnavailable, Err: err}
}

// DeviceIO creates a DeviceError for a failed read or write.  gone
// records whether the device itself has disappeared.
func DeviceIO(op, device string, err error, gone bool) *DeviceError {
	return &DeviceError{Op: op, Device: device, Kind: ErrDeviceIO, Err: err, Gone: gone}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsTemporary reports whether err represents a temporary condition.
func IsTemporary(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsDeviceGone reports whether err carries a DeviceError for a device
// that was closed or removed.
func IsDeviceGone(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Gone
}

// IsGoneCause reports whether a raw I/O error from a serial driver
// means the device is no longer there.
func IsGoneCause(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.EBADF)
}

// IsHarmless returns true for errors that are expected when a relay
// session is torn down: EOF and use of a closed connection.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
