// Package mock provides test doubles for the transport package interfaces.
//
// Use Dialer to script connection outcomes and Conn to control the lifetime
// of an individual connection: feed inbound frames with Deliver, inspect
// writes via WriteCalls, and kill the connection with Fail.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/streamlation/audiolink/pkg/transport"
)

// Dialer is a mock implementation of transport.Dialer. By default every Dial
// succeeds with a fresh Conn; set FailNext to script failures.
type Dialer struct {
	mu sync.Mutex

	// FailNext is the number of upcoming Dial calls that fail with DialErr.
	// A negative value makes every Dial fail.
	FailNext int

	// DialErr is the error returned by failing Dial calls. Defaults to a
	// generic refusal when nil.
	DialErr error

	// Block, when non-nil, is received from before each Dial returns.
	// Close it (or send on it) to release a blocked dial.
	Block chan struct{}

	// DialCalls records the URL of every Dial invocation.
	DialCalls []string

	// Conns records every Conn handed out, in order.
	Conns []*Conn
}

// Dial records the call and returns the next scripted outcome.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.DialCalls = append(d.DialCalls, url)
	fail := d.FailNext != 0
	if d.FailNext > 0 {
		d.FailNext--
	}
	dialErr := d.DialErr
	block := d.Block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		if dialErr == nil {
			dialErr = errors.New("mock: connection refused")
		}
		return nil, dialErr
	}

	c := NewConn()
	d.mu.Lock()
	d.Conns = append(d.Conns, c)
	d.mu.Unlock()
	return c, nil
}

// DialCount returns the number of Dial calls so far. Thread-safe.
func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DialCalls)
}

// LastConn returns the most recently created Conn, or nil.
func (d *Dialer) LastConn() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Conns) == 0 {
		return nil
	}
	return d.Conns[len(d.Conns)-1]
}

// Ensure Dialer implements transport.Dialer at compile time.
var _ transport.Dialer = (*Dialer)(nil)

// WriteCall records a single invocation of Conn.Write.
type WriteCall struct {
	Data   []byte
	Binary bool
}

// frame is one scripted inbound message.
type frame struct {
	data   []byte
	binary bool
}

// Conn is a scripted in-memory connection.
type Conn struct {
	mu     sync.Mutex
	closed bool

	// WriteErr, if non-nil, is returned by every Write call.
	WriteErr error

	// Writes records every Write in order.
	Writes []WriteCall

	// CloseCode and CloseReason record the arguments of the first Close call.
	CloseCode   int
	CloseReason string

	inbound chan frame
	done    chan struct{}
	readErr error
}

// NewConn returns an open scripted connection.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan frame, 16),
		done:    make(chan struct{}),
	}
}

// Read blocks until a frame is delivered, the connection fails, or ctx ends.
func (c *Conn) Read(ctx context.Context) ([]byte, bool, error) {
	select {
	case f := <-c.inbound:
		return f.data, f.binary, nil
	case <-c.done:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = errors.New("mock: connection closed")
		}
		return nil, false, err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Write records the call and returns WriteErr.
func (c *Conn) Write(ctx context.Context, data []byte, binary bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("mock: write to closed connection")
	}
	if c.WriteErr != nil {
		return c.WriteErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.Writes = append(c.Writes, WriteCall{Data: cp, Binary: binary})
	return nil
}

// Close marks the connection closed and unblocks any pending Read.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.CloseCode = code
	c.CloseReason = reason
	close(c.done)
	return nil
}

// Alive reports whether the connection has not been closed or failed.
func (c *Conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Deliver queues an inbound text or binary frame for the reader.
func (c *Conn) Deliver(data []byte, binary bool) {
	c.inbound <- frame{data: data, binary: binary}
}

// Fail terminates the connection with the given read error, as if the peer
// dropped it. Use a websocket.CloseError to simulate a close frame.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.readErr = err
	close(c.done)
	c.mu.Unlock()
}

// KillSilently marks the connection dead without unblocking the reader,
// simulating a socket that died with no error surfacing to the read loop.
func (c *Conn) KillSilently() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// WriteAt returns a copy of the i-th recorded write. Thread-safe.
func (c *Conn) WriteAt(i int) WriteCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Writes[i]
}

// WriteCount returns the number of Write calls so far. Thread-safe.
func (c *Conn) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Writes)
}

// SetWriteErr makes all subsequent writes fail with err. Thread-safe.
func (c *Conn) SetWriteErr(err error) {
	c.mu.Lock()
	c.WriteErr = err
	c.mu.Unlock()
}

// Ensure Conn implements transport.Conn at compile time.
var _ transport.Conn = (*Conn)(nil)
