// Package serial owns the bridge's serial device.  A Channel wraps a
// go.bug.st/serial port with the read/write contract the relay needs:
// reads wait at most one poll interval and report zero bytes when the
// line is idle, and every failure is classified as transient or as the
// device having gone away.
package serial

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	bugserial "go.bug.st/serial"

	ncerr "ser2tcp/internal/errors"
)

// maxEarlyZeros is how many zero-byte reads in a row that returned well
// before the poll interval elapsed are tolerated before the device is
// declared gone.  Some drivers report an unplugged USB adapter this way
// instead of returning an error.
const maxEarlyZeros = 3

// Port is the subset of [bugserial.Port] used by a Channel.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// OpenFunc opens a serial device.  [OpenPort] is the real one; tests
// substitute an in-memory port.
type OpenFunc func(device string, mode *bugserial.Mode) (Port, error)

// OpenPort opens device with go.bug.st/serial.
func OpenPort(device string, mode *bugserial.Mode) (Port, error) {
	return bugserial.Open(device, mode)
}

// Options configures [Open].  Zero values fall back to 8N1 and a 10ms
// poll interval.
type Options struct {
	Baud         int
	DataBits     int
	Parity       string // N, E, O, M, S
	StopBits     string // 1, 1.5, 2
	PollInterval time.Duration
	Open         OpenFunc
}

// Channel is an open serial device.  One goroutine may read while
// another writes; Close may be called from anywhere, any number of
// times.
type Channel struct {
	device string
	baud   int
	poll   time.Duration
	port   Port

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	earlyZeros int // reader goroutine only
}

// Open opens device at the configured line settings.  Any failure is
// returned as a DeviceError of kind ErrDeviceUnavailable; nothing is
// retried.
func Open(device string, opts Options) (*Channel, error) {
	mode, err := Mode(opts)
	if err != nil {
		return nil, ncerr.Unavailable(device, err)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	open := opts.Open
	if open == nil {
		open = OpenPort
	}

	port, err := open(device, mode)
	if err != nil {
		return nil, ncerr.Unavailable(device, err)
	}
	if err := port.SetReadTimeout(poll); err != nil {
		port.Close()
		return nil, ncerr.Unavailable(device, fmt.Errorf("set read timeout: %w", err))
	}

	return &Channel{device: device, baud: mode.BaudRate, poll: poll, port: port}, nil
}

// Mode translates Options into a go.bug.st/serial mode.
func Mode(opts Options) (*bugserial.Mode, error) {
	if opts.Baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", opts.Baud)
	}
	m := &bugserial.Mode{BaudRate: opts.Baud, DataBits: opts.DataBits}
	if m.DataBits == 0 {
		m.DataBits = 8
	}

	switch opts.Parity {
	case "", "N":
		m.Parity = bugserial.NoParity
	case "E":
		m.Parity = bugserial.EvenParity
	case "O":
		m.Parity = bugserial.OddParity
	case "M":
		m.Parity = bugserial.MarkParity
	case "S":
		m.Parity = bugserial.SpaceParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	switch opts.StopBits {
	case "", "1":
		m.StopBits = bugserial.OneStopBit
	case "1.5":
		m.StopBits = bugserial.OnePointFiveStopBits
	case "2":
		m.StopBits = bugserial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %q", opts.StopBits)
	}
	return m, nil
}

// List returns the serial ports present on this machine.
func List() ([]string, error) {
	ports, err := bugserial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerating serial ports: %w", err)
	}
	return ports, nil
}

// Device returns the device identifier the channel was opened with.
func (c *Channel) Device() string { return c.device }

// Baud returns the configured line speed.
func (c *Channel) Baud() int { return c.baud }

// PollInterval returns the longest time one ReadAvailable call waits.
func (c *Channel) PollInterval() time.Duration { return c.poll }

// IsOpen reports whether Close has not yet been called.
func (c *Channel) IsOpen() bool { return !c.closed.Load() }

// ReadAvailable reads whatever the device has buffered into buf,
// waiting at most one poll interval.  It returns 0, nil when the line
// is idle.
func (c *Channel) ReadAvailable(buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, ncerr.DeviceIO("read", c.device, os.ErrClosed, true)
	}

	start := time.Now()
	n, err := c.port.Read(buf)
	if err != nil {
		return n, ncerr.DeviceIO("read", c.device, err, c.gone(err))
	}
	if n > 0 {
		c.earlyZeros = 0
		return n, nil
	}

	if time.Since(start) < c.poll/2 {
		c.earlyZeros++
		if c.earlyZeros >= maxEarlyZeros {
			return 0, ncerr.DeviceIO("read", c.device, io.EOF, true)
		}
	} else {
		c.earlyZeros = 0
	}
	return 0, nil
}

// Write sends all of p to the device.
func (c *Channel) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ncerr.DeviceIO("write", c.device, os.ErrClosed, true)
	}

	total := 0
	for total < len(p) {
		n, err := c.port.Write(p[total:])
		total += n
		if err != nil {
			return total, ncerr.DeviceIO("write", c.device, err, c.gone(err))
		}
		if n == 0 {
			return total, ncerr.DeviceIO("write", c.device, io.ErrShortWrite, false)
		}
	}
	return total, nil
}

// Close releases the device.  Only the first call closes the port;
// later calls return the same result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err := c.port.Close(); err != nil {
			c.closeErr = ncerr.DeviceIO("close", c.device, err, true)
		}
	})
	return c.closeErr
}

func (c *Channel) gone(err error) bool {
	if c.closed.Load() || ncerr.IsGoneCause(err) {
		return true
	}
	var pe *bugserial.PortError
	if ncerr.As(err, &pe) {
		switch pe.Code() {
		case bugserial.PortClosed, bugserial.PortNotFound:
			return true
		}
	}
	return false
}
