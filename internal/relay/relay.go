// Package relay runs one bridge session: two copy loops between the
// shared serial channel and a client connection, torn down together.
package relay

import (
	"context"
	"io"
	"sync"

	ncerr "ser2tcp/internal/errors"
	"ser2tcp/internal/metrics"
	"ser2tcp/internal/session"
	"ser2tcp/util"
)

// Serial is what a relay needs from the serial channel.  ReadAvailable
// must return within a short bounded time, reporting 0 bytes when the
// line is idle; the serial→network loop relies on that to stay
// cancellable.
type Serial interface {
	ReadAvailable(buf []byte) (int, error)
	Write(p []byte) (int, error)
}

// Direction names one relay loop.
type Direction string

const (
	SerialToNetwork Direction = "serial->network"
	NetworkToSerial Direction = "network->serial"
)

// Result describes how a session ended.
type Result struct {
	ToNetwork int64     // bytes relayed serial → client
	ToSerial  int64     // bytes relayed client → serial
	Ended     Direction // loop that finished first; empty if cancelled from outside
	Cancelled bool      // the parent context ended the session
	Err       error     // cause of the end; nil for a clean close or cancellation
}

// DeviceGone reports whether the session ended because the serial
// device disappeared.
func (r Result) DeviceGone() bool { return ncerr.IsDeviceGone(r.Err) }

// Pair relays between Serial and the session's connection.  The
// session connection is owned by the pair and closed when Run returns;
// Serial is only borrowed.
type Pair struct {
	Serial  Serial
	Session *session.Session
	Metrics *metrics.Collector
}

type loopEnd struct {
	dir Direction
	err error
}

// Run starts both loops and blocks until the session is over.  The
// session ends as soon as either loop stops or ctx is done; the other
// loop is then cancelled and the connection closed before Run returns.
func (p *Pair) Run(ctx context.Context) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		res  Result
		ends = make(chan loopEnd, 2)
	)

	// serial → network
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := p.serialToNetwork(ctx)
		res.ToNetwork = n
		ends <- loopEnd{SerialToNetwork, err}
	}()

	// network → serial
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := p.networkToSerial(ctx)
		res.ToSerial = n
		ends <- loopEnd{NetworkToSerial, err}
	}()

	var first loopEnd
	select {
	case first = <-ends:
	case <-ctx.Done():
		res.Cancelled = true
	}

	// Stop the survivor: the context covers the serial poll, closing
	// the connection unblocks a pending network read or write.
	cancel()
	p.Session.Close() //nolint:errcheck
	wg.Wait()

	res.Ended = first.dir
	res.Err = sessionCause(first.err)
	p.Session.Logger.Debug("relay stopped: ended=%q to_network=%d to_serial=%d err=%v",
		res.Ended, res.ToNetwork, res.ToSerial, res.Err)
	return res
}

// serialToNetwork polls the device and forwards whatever it produced.
// The next poll starts only after the network write returned, which is
// the backpressure on the serial side.
func (p *Pair) serialToNetwork(ctx context.Context) (int64, error) {
	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	var total int64
	for {
		if ctx.Err() != nil {
			return total, nil
		}
		n, err := p.Serial.ReadAvailable(buf)
		if err != nil {
			return total, err
		}
		if n == 0 {
			continue
		}
		if _, err := p.Session.Conn.Write(buf[:n]); err != nil {
			if ctx.Err() != nil {
				return total, nil
			}
			return total, ncerr.Wrap("write", p.Session.Peer, err)
		}
		total += int64(n)
		p.Metrics.BytesToNetwork(int64(n))
	}
}

// networkToSerial reads up to util.ChunkSize bytes at a time from the
// client and writes them to the device.
func (p *Pair) networkToSerial(ctx context.Context) (int64, error) {
	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	var total int64
	for {
		n, err := p.Session.Conn.Read(buf)
		if n > 0 {
			if _, werr := p.Serial.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
			p.Metrics.BytesToSerial(int64(n))
		}
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return total, nil
			}
			return total, ncerr.Wrap("read", p.Session.Peer, err)
		}
	}
}

// sessionCause drops errors that are just the normal shape of a session
// ending, so callers only see real failures.  A vanished device is
// always kept even though its cause is usually EOF.
func sessionCause(err error) error {
	if err == nil || ncerr.IsDeviceGone(err) {
		return err
	}
	if ncerr.IsHarmless(err) {
		return nil
	}
	return err
}
