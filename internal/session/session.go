// Package session represents one admitted client: the connection the
// relay owns for the session's lifetime, plus the identity used when
// logging it.
package session

import (
	"net"
	"sync"
	"time"

	"ser2tcp/util"
)

// Session is the lifetime of one admitted client connection, from gate
// admission to gate release.
type Session struct {
	ID      uint64
	Conn    net.Conn
	Peer    string
	Started time.Time
	Logger  *util.Logger

	closeOnce sync.Once
	closeErr  error
}

// New binds conn to a session and derives a logger that tags every
// line with the session id and peer address.
func New(id uint64, conn net.Conn, logger *util.Logger) *Session {
	peer := util.PeerAddr(conn)
	return &Session{
		ID:      id,
		Conn:    conn,
		Peer:    peer,
		Started: time.Now(),
		Logger:  logger.With("session", id, "peer", peer),
	}
}

// Close closes the client connection.  It is safe to call more than
// once and from several goroutines; only the first call reaches the
// connection.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

// Duration returns how long the session has been running.
func (s *Session) Duration() time.Duration {
	return time.Since(s.Started)
}
