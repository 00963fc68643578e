package transport

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/coder/websocket"
)

// CloseNormal is the WebSocket normal-closure status code. A close with this
// code never triggers reconnection.
const CloseNormal = int(websocket.StatusNormalClosure)

// closeCodeAbnormal marks a teardown with no close frame (e.g. a dead TCP
// connection discovered by a failed heartbeat).
const closeCodeAbnormal = int(websocket.StatusAbnormalClosure)

// Conn is one physical connection to the server. Implementations must be
// safe for one concurrent reader and one concurrent writer.
type Conn interface {
	// Read blocks until the next message arrives. binary reports whether the
	// frame was a binary frame.
	Read(ctx context.Context) (data []byte, binary bool, err error)

	// Write sends one message as a binary or text frame.
	Write(ctx context.Context, data []byte, binary bool) error

	// Close closes the connection with the given status code and reason.
	Close(code int, reason string) error

	// Alive reports whether the connection is still believed open. Used by
	// the Manager to reconcile logical state against the physical socket.
	Alive() bool
}

// Dialer opens connections. The Manager owns exactly one Dialer; tests
// substitute a scripted implementation.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// wsDialer dials real WebSocket connections via coder/websocket.
type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	// Audio blocks can be large; the library default read limit is 32 KiB.
	c.SetReadLimit(1 << 20)
	wc := &wsConn{conn: c}
	wc.alive.Store(true)
	return wc, nil
}

// wsConn adapts *websocket.Conn to [Conn], tracking liveness so the Manager
// can detect a socket that died underneath a Connected state.
type wsConn struct {
	conn  *websocket.Conn
	alive atomic.Bool
}

func (c *wsConn) Read(ctx context.Context) ([]byte, bool, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		c.alive.Store(false)
		return nil, false, err
	}
	return data, typ == websocket.MessageBinary, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte, binary bool) error {
	typ := websocket.MessageText
	if binary {
		typ = websocket.MessageBinary
	}
	if err := c.conn.Write(ctx, typ, data); err != nil {
		c.alive.Store(false)
		return err
	}
	return nil
}

func (c *wsConn) Close(code int, reason string) error {
	c.alive.Store(false)
	return c.conn.Close(websocket.StatusCode(code), reason)
}

func (c *wsConn) Alive() bool { return c.alive.Load() }

// closeStatus extracts the WebSocket close code and reason from a read or
// write error. Errors that carry no close frame map to abnormal closure.
func closeStatus(err error) (int, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return int(ce.Code), ce.Reason
	}
	return int(websocket.StatusAbnormalClosure), err.Error()
}
