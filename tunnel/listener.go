package tunnel

// Remote listener built on the "tcpip-forward" global request.
//
// ssh.Client.Listen only delivers forwarded-tcpip channels whose address
// matches the string that was sent in the request.  Gateways that
// normalise the bind address (sending back "0.0.0.0" for "") would have
// every client rejected, so the handler is registered here directly and
// every forwarded channel is accepted.

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "ser2tcp/internal/errors"
)

// forwardRequest is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" (RFC 4254 §7.1).
type forwardRequest struct {
	Addr string
	Port uint32
}

// forwardReply is the optional reply to "tcpip-forward" carrying the
// port the gateway allocated when 0 was requested.
type forwardReply struct {
	Port uint32
}

// forwardedChannel is the channel-open payload of "forwarded-tcpip"
// (RFC 4254 §7.2).
type forwardedChannel struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// remoteListener is a [net.Listener] whose connections arrive as SSH
// forwarded-tcpip channels.
type remoteListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// listenRemoteForward asks the gateway to listen on bindAddr:bindPort
// and returns a listener for the connections it forwards back.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (net.Listener, error) {
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("remote forward already active on this connection")
	}

	req := forwardRequest{Addr: bindAddr, Port: uint32(bindPort)}
	ok, payload, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&req))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("gateway refused to listen on %s",
			net.JoinHostPort(bindAddr, strconv.Itoa(bindPort)))
	}

	port := uint32(bindPort)
	if port == 0 {
		var reply forwardReply
		if err := ssh.Unmarshal(payload, &reply); err == nil {
			port = reply.Port
		}
	}

	return &remoteListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: port,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

// Accept returns the next client forwarded by the gateway.  It returns
// io.EOF once the listener is closed, and ErrTunnelClosed (also
// matching io.EOF) once the SSH connection is gone.
func (l *remoteListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, io.EOF
	case nc, ok := <-l.incoming:
		if !ok {
			return nil, fmt.Errorf("%w: %w", ncerr.ErrTunnelClosed, io.EOF)
		}
		ch, reqs, err := nc.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept forwarded channel: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		var origin forwardedChannel
		raddr := &net.TCPAddr{}
		if err := ssh.Unmarshal(nc.ExtraData(), &origin); err == nil {
			raddr = &net.TCPAddr{IP: net.ParseIP(origin.OriginAddr), Port: int(origin.OriginPort)}
		}
		return &channelConn{Channel: ch, laddr: l.Addr(), raddr: raddr}, nil
	}
}

// Close cancels the forward on the gateway and unblocks Accept.
func (l *remoteListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		req := forwardRequest{Addr: l.bindAddr, Port: l.bindPort}
		// The connection may already be gone.
		_, _, _ = l.client.SendRequest("cancel-tcpip-forward", false, ssh.Marshal(&req))
	})
	return nil
}

// Addr returns the address the gateway listens on.
func (l *remoteListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// channelConn adapts an [ssh.Channel] to [net.Conn].  Deadlines are not
// supported by SSH channels and are ignored.
type channelConn struct {
	ssh.Channel
	laddr net.Addr
	raddr net.Addr
}

func (c *channelConn) LocalAddr() net.Addr                { return c.laddr }
func (c *channelConn) RemoteAddr() net.Addr               { return c.raddr }
func (c *channelConn) SetDeadline(_ time.Time) error      { return nil }
func (c *channelConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(_ time.Time) error { return nil }
