package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	ncerr "ser2tcp/internal/errors"
	"ser2tcp/tunnel"
	"ser2tcp/util"
)

// TestTCPListener_Accept verifies that a client can reach the bound
// socket and exchange data.
func TestTCPListener_Accept(t *testing.T) {
	l := &TCPListener{Address: "127.0.0.1:0", KeepAlive: 15 * time.Second}
	ln, err := l.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("hello from bridge\n")) //nolint:errcheck
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello from bridge\n" {
		t.Errorf("got %q", got)
	}
}

// TestTCPListener_PortInUse verifies that a bind failure surfaces as
// a BindError naming the address.
func TestTCPListener_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	l := &TCPListener{Address: busy.Addr().String()}
	_, err = l.Listen(context.Background())

	var bindErr *ncerr.BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("err = %v, want *BindError", err)
	}
	if bindErr.Addr != busy.Addr().String() {
		t.Errorf("Addr = %q", bindErr.Addr)
	}
}

func TestTCPListener_CloseAndString(t *testing.T) {
	l := &TCPListener{Address: "0.0.0.0:5000"}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := l.String(); got != "tcp://0.0.0.0:5000" {
		t.Errorf("String() = %q", got)
	}
}

// fakeTunnel records calls and hands out a loopback listener.
type fakeTunnel struct {
	connectErr error
	listenErr  error
	connects   int
	closes     int
	bindAddr   string
	port       int
}

func (f *fakeTunnel) Connect(context.Context) error {
	f.connects++
	return f.connectErr
}

func (f *fakeTunnel) Listen(bindAddr string, port int) (net.Listener, error) {
	f.bindAddr, f.port = bindAddr, port
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	return net.Listen("tcp", "127.0.0.1:0")
}

func (f *fakeTunnel) Close() error {
	f.closes++
	return nil
}

func (f *fakeTunnel) IsAlive() bool { return f.connects > f.closes }

func testSSHConfig() *tunnel.SSHConfig {
	return &tunnel.SSHConfig{User: "pi", Host: "gw.example", Port: 22}
}

func TestSSHListener_ConnectsOnce(t *testing.T) {
	ft := &fakeTunnel{}
	l := newSSHListener(ft, testSSHConfig(), "0.0.0.0", 5000, util.NewLogger(0))

	for i := 0; i < 2; i++ {
		ln, err := l.Listen(context.Background())
		if err != nil {
			t.Fatalf("Listen #%d: %v", i, err)
		}
		ln.Close()
	}
	if ft.connects != 1 {
		t.Errorf("connects = %d, want 1", ft.connects)
	}
	if ft.bindAddr != "0.0.0.0" || ft.port != 5000 {
		t.Errorf("forward requested for %s:%d", ft.bindAddr, ft.port)
	}

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if ft.closes != 1 {
		t.Errorf("closes = %d, want 1", ft.closes)
	}
}

func TestSSHListener_ConnectFailure(t *testing.T) {
	cause := ncerr.WrapSSH("handshake", "gw.example", 22, errors.New("unable to authenticate"))
	ft := &fakeTunnel{connectErr: cause}
	l := newSSHListener(ft, testSSHConfig(), "", 5000, util.NewLogger(0))

	_, err := l.Listen(context.Background())
	var sshErr *ncerr.SSHError
	if !errors.As(err, &sshErr) {
		t.Fatalf("err = %v, want *SSHError", err)
	}
	if err := l.Close(); err != nil || ft.closes != 0 {
		t.Errorf("Close after failed connect: err=%v closes=%d", err, ft.closes)
	}
}

func TestSSHListener_ForwardRefused(t *testing.T) {
	ft := &fakeTunnel{listenErr: errors.New("gateway refused")}
	l := newSSHListener(ft, testSSHConfig(), "", 5000, util.NewLogger(0))
	defer l.Close()

	_, err := l.Listen(context.Background())
	var bindErr *ncerr.BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("err = %v, want *BindError", err)
	}
	if !strings.Contains(bindErr.Addr, "gw.example") {
		t.Errorf("Addr = %q", bindErr.Addr)
	}
}

func TestSSHListener_String(t *testing.T) {
	l := NewSSHListener(testSSHConfig(), "0.0.0.0", 5000, util.NewLogger(0))
	want := "ssh://pi@gw.example:22 (remote 0.0.0.0:5000)"
	if got := l.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
