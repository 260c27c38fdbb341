package relay

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"testing"
	"time"

	"ser2tcp/internal/metrics"
	"ser2tcp/internal/serial"
	"ser2tcp/internal/serial/serialtest"
	"ser2tcp/internal/session"
	"ser2tcp/util"
)

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func newPair(t *testing.T) (*Pair, *serialtest.Port, net.Conn, *metrics.Collector) {
	t.Helper()
	port := serialtest.New()
	ch, err := serial.Open("/dev/ttyFAKE0", serial.Options{
		Baud:         115200,
		PollInterval: 5 * time.Millisecond,
		Open:         port.Opener(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() })

	server, client := tcpPair(t)
	m := metrics.New()
	return &Pair{
		Serial:  ch,
		Session: session.New(1, server, util.NewLogger(0)),
		Metrics: m,
	}, port, client, m
}

// runAsync starts p.Run and returns a channel that yields its result.
func runAsync(ctx context.Context, p *Pair) <-chan Result {
	done := make(chan Result, 1)
	go func() { done <- p.Run(ctx) }()
	return done
}

func waitResult(t *testing.T, done <-chan Result) Result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not stop in time")
		return Result{}
	}
}

func TestRelay_PingPong(t *testing.T) {
	p, port, client, m := newPair(t)
	done := runAsync(context.Background(), p)

	if _, err := client.Write([]byte("PING")); err != nil {
		t.Fatal(err)
	}
	if got := port.WaitWritten(4, 2*time.Second); !bytes.Equal(got, []byte("PING")) {
		t.Fatalf("device saw %q, want PING", got)
	}

	port.Feed([]byte("PONG"))
	client.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	buf := make([]byte, 4)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(buf) != "PONG" {
		t.Errorf("client saw %q, want PONG", buf)
	}

	client.Close()
	res := waitResult(t, done)

	if res.Ended != NetworkToSerial {
		t.Errorf("Ended = %q, want %q", res.Ended, NetworkToSerial)
	}
	if res.Err != nil {
		t.Errorf("clean disconnect reported error: %v", res.Err)
	}
	if res.ToSerial != 4 || res.ToNetwork != 4 {
		t.Errorf("counts = %d/%d, want 4/4", res.ToSerial, res.ToNetwork)
	}
	if m.TotalBytesToSerial() != 4 || m.TotalBytesToNetwork() != 4 {
		t.Errorf("metrics = %d/%d", m.TotalBytesToSerial(), m.TotalBytesToNetwork())
	}
}

func TestRelay_FidelityBothDirections(t *testing.T) {
	p, port, client, _ := newPair(t)
	done := runAsync(context.Background(), p)

	rng := rand.New(rand.NewSource(1))
	up := make([]byte, 64*1024)
	down := make([]byte, 48*1024)
	rng.Read(up)
	rng.Read(down)

	go func() {
		client.Write(up) //nolint:errcheck
	}()
	port.Feed(down)

	client.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck
	got := make([]byte, len(down))
	if _, err := io.ReadFull(client, got); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if !bytes.Equal(got, down) {
		t.Error("serial → network bytes differ")
	}
	if written := port.WaitWritten(len(up), 3*time.Second); !bytes.Equal(written, up) {
		t.Errorf("network → serial bytes differ (got %d of %d)", len(written), len(up))
	}

	client.Close()
	waitResult(t, done)
}

func TestRelay_ClientDisconnectStopsSerialLoop(t *testing.T) {
	p, _, client, _ := newPair(t)
	done := runAsync(context.Background(), p)

	// Nothing ever arrives from the device, so only cancellation can
	// stop the serial side.
	client.Close()
	res := waitResult(t, done)
	if res.Ended != NetworkToSerial || res.Cancelled {
		t.Errorf("result = %+v", res)
	}
}

func TestRelay_DeviceUnplugged(t *testing.T) {
	p, port, client, _ := newPair(t)
	done := runAsync(context.Background(), p)

	port.Unplug()
	res := waitResult(t, done)

	if res.Ended != SerialToNetwork {
		t.Errorf("Ended = %q, want %q", res.Ended, SerialToNetwork)
	}
	if !res.DeviceGone() {
		t.Errorf("expected device-gone error, got %v", res.Err)
	}

	// The relay closed the client connection on its way out.
	client.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Error("client connection should be closed")
	}
}

func TestRelay_SerialWriteFailure(t *testing.T) {
	p, port, client, _ := newPair(t)
	done := runAsync(context.Background(), p)

	port.Unplug()
	client.Write([]byte("late")) //nolint:errcheck

	res := waitResult(t, done)
	if res.Err == nil {
		t.Error("expected the device failure to be reported")
	}
}

func TestRelay_ContextCancel(t *testing.T) {
	p, _, client, _ := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, p)

	time.Sleep(20 * time.Millisecond)
	cancel()
	res := waitResult(t, done)

	if !res.Cancelled {
		t.Error("Cancelled should be set")
	}
	if res.Err != nil {
		t.Errorf("cancellation reported error: %v", res.Err)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Error("client connection should be closed after cancel")
	}
}

func TestSessionCause(t *testing.T) {
	if sessionCause(nil) != nil {
		t.Error("nil stays nil")
	}
	if sessionCause(io.EOF) != nil {
		t.Error("EOF is a clean end")
	}
	if sessionCause(io.ErrUnexpectedEOF) == nil {
		t.Error("unexpected EOF is a real failure")
	}
}
