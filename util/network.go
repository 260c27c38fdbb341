package util

import (
	"net"
	"strconv"
)

// FormatAddr returns "host:port", bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// PeerAddr returns the remote address of conn, or "?" when the
// transport does not report one.
func PeerAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return "?"
	}
	return conn.RemoteAddr().String()
}
