// Package metrics provides lightweight, lock-free counters for
// tracking bridge activity across sessions.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one bridge process.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	sessionsRejected atomic.Int64
	bytesToNetwork   atomic.Int64
	bytesToSerial    atomic.Int64
	deviceLosses     atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// SessionRejected counts a connection turned away by the gate.
func (c *Collector) SessionRejected() {
	if c == nil {
		return
	}
	c.sessionsRejected.Add(1)
}

// ActiveSessions returns the number of sessions currently relaying.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime admitted-session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// RejectedSessions returns the lifetime rejected-connection count.
func (c *Collector) RejectedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsRejected.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesToNetwork records n bytes relayed from the serial device to a
// client.
func (c *Collector) BytesToNetwork(n int64) {
	if c == nil {
		return
	}
	c.bytesToNetwork.Add(n)
}

// BytesToSerial records n bytes relayed from a client to the device.
func (c *Collector) BytesToSerial(n int64) {
	if c == nil {
		return
	}
	c.bytesToSerial.Add(n)
}

// TotalBytesToNetwork returns total bytes sent to clients.
func (c *Collector) TotalBytesToNetwork() int64 {
	if c == nil {
		return 0
	}
	return c.bytesToNetwork.Load()
}

// TotalBytesToSerial returns total bytes written to the device.
func (c *Collector) TotalBytesToSerial() int64 {
	if c == nil {
		return 0
	}
	return c.bytesToSerial.Load()
}

// ── Device metrics ───────────────────────────────────────────────────

// DeviceLost records a session that ended because the serial device
// went away.
func (c *Collector) DeviceLost() {
	if c == nil {
		return
	}
	c.deviceLosses.Add(1)
}

// DeviceLosses returns the number of device-loss events.
func (c *Collector) DeviceLosses() int64 {
	if c == nil {
		return 0
	}
	return c.deviceLosses.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	SessionsRejected int64  `json:"sessions_rejected"`
	BytesToNetwork   int64  `json:"bytes_to_network"`
	BytesToSerial    int64  `json:"bytes_to_serial"`
	DeviceLosses     int64  `json:"device_losses"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		SessionsRejected: c.sessionsRejected.Load(),
		BytesToNetwork:   c.bytesToNetwork.Load(),
		BytesToSerial:    c.bytesToSerial.Load(),
		DeviceLosses:     c.deviceLosses.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as a compact JSON string.
func (c *Collector) JSON() string {
	data, _ := json.Marshal(c.Snapshot())
	return string(data)
}
