package errors

import (
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "accept", Addr: "0.0.0.0:5000", Err: io.EOF, Retryable: true},
			want: "accept 0.0.0.0:5000: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "write", Addr: "10.0.0.2:51234", Err: fmt.Errorf("broken pipe")},
			want: "write 10.0.0.2:51234: broken pipe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "read", Addr: "x", Err: io.EOF}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestDeviceError(t *testing.T) {
	cause := fmt.Errorf("no such file or directory")

	open := Unavailable("/dev/ttyUSB0", cause)
	if !Is(open, ErrDeviceUnavailable) {
		t.Error("open failure should match ErrDeviceUnavailable")
	}
	if !Is(open, cause) {
		t.Error("open failure should unwrap to its cause")
	}
	if Is(open, ErrDeviceIO) {
		t.Error("open failure should not match ErrDeviceIO")
	}
	if want := "serial open /dev/ttyUSB0: no such file or directory"; open.Error() != want {
		t.Errorf("got %q, want %q", open.Error(), want)
	}

	gone := DeviceIO("read", "COM7", io.EOF, true)
	if !Is(gone, ErrDeviceIO) {
		t.Error("read failure should match ErrDeviceIO")
	}
	if !IsDeviceGone(fmt.Errorf("relay: %w", gone)) {
		t.Error("wrapped gone error should be detected")
	}
	if want := "serial read COM7: EOF (device gone)"; gone.Error() != want {
		t.Errorf("got %q, want %q", gone.Error(), want)
	}

	if IsDeviceGone(DeviceIO("write", "COM7", cause, false)) {
		t.Error("transient write failure is not gone")
	}
}

func TestIsGoneCause(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"closed file", os.ErrClosed, true},
		{"eio", &os.PathError{Op: "read", Path: "/dev/ttyUSB0", Err: syscall.EIO}, true},
		{"enxio", syscall.ENXIO, true},
		{"plain", fmt.Errorf("parity error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGoneCause(tt.err); got != tt.want {
				t.Errorf("IsGoneCause() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBindError(t *testing.T) {
	err := &BindError{Addr: "0.0.0.0:5000", Err: syscall.EADDRINUSE}
	if !Is(err, syscall.EADDRINUSE) {
		t.Error("should unwrap to EADDRINUSE")
	}
	var be *BindError
	if !As(fmt.Errorf("bridge: %w", err), &be) || be.Addr != "0.0.0.0:5000" {
		t.Errorf("As failed: %+v", be)
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "bastion.example.com", 22, fmt.Errorf("connection refused"))
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, err.Err) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "tcp-port",
				Value:   99999,
				Message: "out of range 1-65535",
				Hint:    "use a port between 1 and 65535",
			},
			want: "config: --tcp-port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "port",
				Message: "serial device is required",
			},
			want: "config: --port: serial device is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "accept", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "accept", Addr: "x", Err: io.EOF}, false},
		{"emfile", Wrap("accept", ":5000", syscall.EMFILE), true},
		{"plain error", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHarmless(t *testing.T) {
	if !IsHarmless(nil) {
		t.Error("nil should be harmless")
	}
	if !IsHarmless(io.EOF) {
		t.Error("io.EOF should be harmless")
	}
	if !IsHarmless(&net.OpError{Op: "read", Net: "tcp", Err: net.ErrClosed}) {
		t.Error("closed connection should be harmless")
	}
	if IsHarmless(io.ErrUnexpectedEOF) {
		t.Error("ErrUnexpectedEOF should NOT be harmless")
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrDeviceUnavailable, ErrDeviceIO, ErrDeviceLost,
		ErrTunnelClosed, ErrNotConnected,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
