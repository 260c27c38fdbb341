// Package bridge is the serial-to-network server: it owns the serial
// channel and the listening socket for the life of the process and runs
// at most one relay session at a time.
package bridge

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ncerr "ser2tcp/internal/errors"
	"ser2tcp/internal/gate"
	"ser2tcp/internal/metrics"
	"ser2tcp/internal/relay"
	"ser2tcp/internal/retry"
	"ser2tcp/internal/serial"
	"ser2tcp/internal/session"
	"ser2tcp/internal/transport"
	"ser2tcp/util"
)

// Options configures a [Server].
type Options struct {
	Device   string
	Serial   serial.Options
	Listener transport.Listener

	// ExitOnDeviceLoss makes Run return ErrDeviceLost when a session
	// ends because the device disappeared.  Otherwise the loss is
	// logged and the server keeps accepting.
	ExitOnDeviceLoss bool

	// GracePeriod bounds how long shutdown waits for the active session
	// before the device is closed under it.  Defaults to 5s.
	GracePeriod time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector // may be nil
}

// Server bridges one serial device to one network client at a time.
type Server struct {
	opts Options
	gate gate.Gate

	nextID   atomic.Uint64
	sessions sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	fatal  error
}

// New creates a server.  Nothing is opened until [Server.Run].
func New(opts Options) *Server {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	return &Server{opts: opts}
}

// Run opens the serial device, binds the listener and serves clients
// until ctx is done.  Failing to open the device or to bind is returned
// at once.  A cancelled ctx is a clean shutdown and returns nil.
func (s *Server) Run(ctx context.Context) error {
	log := s.opts.Logger

	ch, err := serial.Open(s.opts.Device, s.opts.Serial)
	if err != nil {
		return err
	}
	log.With("device", ch.Device(), "baud", ch.Baud()).Info("serial opened")

	ln, err := s.opts.Listener.Listen(ctx)
	if err != nil {
		s.closeSerial(ch)
		return err
	}
	defer s.opts.Listener.Close() //nolint:errcheck
	log.With("addr", ln.Addr()).Info("listening on %s", s.opts.Listener)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	err = s.acceptLoop(ctx, ln, ch)
	cancel()

	s.waitSessions()
	s.closeSerial(ch)
	log.Debug("metrics: %s", s.opts.Metrics.JSON())

	if fatal := s.fatalErr(); fatal != nil {
		return fatal
	}
	return err
}

// Occupied reports whether a client is currently admitted.
func (s *Server) Occupied() bool { return s.gate.Occupied() }

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, ch *serial.Channel) error {
	backoff := retry.AcceptBackoff()
	backoff.Retryable = ncerr.IsTemporary
	backoff.OnRetry = func(_ int, err error, wait time.Duration) {
		s.opts.Logger.Warn("accept: %v; retrying in %v", err, wait)
		s.opts.Metrics.RecordError(err.Error())
	}

	for {
		var conn net.Conn
		err := backoff.Do(ctx, func(int) error {
			c, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return retry.Permanent(ctx.Err())
				}
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.admit(ctx, conn, ch)
	}
}

// admit hands conn to a new session, or closes it untouched when a
// session is already running.
func (s *Server) admit(ctx context.Context, conn net.Conn, ch *serial.Channel) {
	if !s.gate.TryAdmit() {
		s.opts.Metrics.SessionRejected()
		s.opts.Logger.With("peer", util.PeerAddr(conn)).Info("client rejected: session already active")
		conn.Close()
		return
	}

	sess := session.New(s.nextID.Add(1), conn, s.opts.Logger)
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		defer s.gate.Release()
		s.serve(ctx, sess, ch)
	}()
}

func (s *Server) serve(ctx context.Context, sess *session.Session, ch *serial.Channel) {
	m := s.opts.Metrics
	m.SessionOpened()
	defer m.SessionClosed()

	sess.Logger.Info("client connected")
	res := (&relay.Pair{Serial: ch, Session: sess, Metrics: m}).Run(ctx)
	sess.Logger.With(
		"duration", sess.Duration().Round(time.Millisecond),
		"to_network", res.ToNetwork,
		"to_serial", res.ToSerial,
	).Info("client disconnected")

	switch {
	case res.DeviceGone():
		m.DeviceLost()
		m.RecordError(res.Err.Error())
		sess.Logger.Error("serial device lost: %v", res.Err)
		if s.opts.ExitOnDeviceLoss {
			s.fail(fmt.Errorf("%w: %v", ncerr.ErrDeviceLost, res.Err))
		}
	case res.Err != nil:
		m.RecordError(res.Err.Error())
		sess.Logger.Verbose("session ended: %v", res.Err)
	}
}

// fail records the first fatal error and stops the server.
func (s *Server) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *Server) waitSessions() {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.opts.Logger.Warn("session still running after %v; closing serial anyway", s.opts.GracePeriod)
	}
}

func (s *Server) closeSerial(ch *serial.Channel) {
	if err := ch.Close(); err != nil {
		s.opts.Logger.Warn("closing %s: %v", ch.Device(), err)
	}
	s.opts.Logger.With("device", ch.Device()).Info("serial closed")
}
