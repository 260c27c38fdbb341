// Package serialtest provides an in-memory serial port for tests.  It
// honours read timeouts the way go.bug.st/serial does: a Read with
// nothing pending waits up to the timeout and then returns 0, nil.
package serialtest

import (
	"bytes"
	"fmt"
	"sync"
	"syscall"
	"time"

	bugserial "go.bug.st/serial"

	"ser2tcp/internal/serial"
)

// ErrUnplugged is returned by every operation after [Port.Unplug].
var ErrUnplugged = fmt.Errorf("device removed: %w", syscall.ENXIO)

// ErrClosed is returned by operations on a closed Port.
var ErrClosed = fmt.Errorf("port closed: %w", syscall.EBADF)

// Port is a fake serial device.  Bytes given to Feed are what the
// device "sends"; bytes written by the code under test collect in
// Written.
type Port struct {
	mu       sync.Mutex
	rx       bytes.Buffer
	tx       bytes.Buffer
	timeout  time.Duration
	closed   bool
	unplug   bool
	mode     *bugserial.Mode
	openErr  error
	opens    int
	readable chan struct{}
	written  chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// New returns an idle Port.
func New() *Port {
	return &Port{
		readable: make(chan struct{}, 1),
		written:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Opener returns an [serial.OpenFunc] that hands out p.  If
// FailOpen was called, the opener returns that error instead.
func (p *Port) Opener() serial.OpenFunc {
	return func(device string, mode *bugserial.Mode) (serial.Port, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.opens++
		if p.openErr != nil {
			return nil, p.openErr
		}
		p.mode = mode
		return p, nil
	}
}

// FailOpen makes the opener return err.
func (p *Port) FailOpen(err error) {
	p.mu.Lock()
	p.openErr = err
	p.mu.Unlock()
}

// Opens reports how many times the opener was called.
func (p *Port) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// Mode returns the mode the port was opened with.
func (p *Port) Mode() *bugserial.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Feed queues data as if the device had sent it.
func (p *Port) Feed(data []byte) {
	p.mu.Lock()
	p.rx.Write(data)
	p.mu.Unlock()
	signal(p.readable)
}

// Written returns a copy of everything written to the device so far.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx.Bytes()...)
}

// WaitWritten blocks until at least n bytes were written or d elapses,
// and returns what was written.
func (p *Port) WaitWritten(n int, d time.Duration) []byte {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	for {
		got := p.Written()
		if len(got) >= n {
			return got
		}
		select {
		case <-p.written:
		case <-deadline.C:
			return p.Written()
		}
	}
}

// Unplug simulates removal of the device.  Pending and future reads
// and writes fail with ErrUnplugged.
func (p *Port) Unplug() {
	p.mu.Lock()
	p.unplug = true
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetReadTimeout implements [serial.Port].
func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

// Read implements [serial.Port].
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()

	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}

	for {
		p.mu.Lock()
		if err := p.errLocked(); err != nil {
			p.mu.Unlock()
			return 0, err
		}
		if p.rx.Len() > 0 {
			n, _ := p.rx.Read(b)
			more := p.rx.Len() > 0
			p.mu.Unlock()
			if more {
				signal(p.readable)
			}
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.readable:
		case <-p.done:
		case <-expire:
			return 0, nil
		}
	}
}

// Write implements [serial.Port].
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if err := p.errLocked(); err != nil {
		p.mu.Unlock()
		return 0, err
	}
	n, _ := p.tx.Write(b)
	p.mu.Unlock()
	signal(p.written)
	return n, nil
}

// Close implements [serial.Port].
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}

func (p *Port) errLocked() error {
	switch {
	case p.unplug:
		return ErrUnplugged
	case p.closed:
		return ErrClosed
	}
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
