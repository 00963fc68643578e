package client

import (
	"fmt"
	"time"

	"github.com/streamlation/audiolink/pkg/transport"
)

// Health is a point-in-time diagnostic snapshot of the client.
type Health struct {
	// Connected reports whether the logical state is Connected after
	// reconciliation against the physical socket.
	Connected bool

	// State is the reconciled connection state.
	State transport.State

	// TransportReady reports whether the physical socket is open.
	TransportReady bool

	// QueueLength is the number of messages awaiting transmission.
	QueueLength int

	// CircuitOpen reports whether the circuit breaker currently suppresses
	// reconnection.
	CircuitOpen bool

	// ReconnectAttempts is the current consecutive reconnect attempt count.
	ReconnectAttempts int

	// LastHeartbeatRTT is the most recent heartbeat round trip, zero when
	// none has completed.
	LastHeartbeatRTT time.Duration

	// Inconsistent reports that the logical state claimed Connected while
	// the physical socket was not open. The snapshot reflects the state
	// after the mismatch was repaired.
	Inconsistent bool

	// Summary is a human-readable one-liner for logs and status endpoints.
	Summary string
}

// Health reconciles the connection state against the physical socket and
// returns a diagnostic snapshot.
func (c *Client) Health() Health {
	before := c.manager.State()
	ready := c.manager.TransportReady()
	state := c.manager.State()

	h := Health{
		Connected:         state == transport.StateConnected,
		State:             state,
		TransportReady:    ready,
		QueueLength:       c.queue.Len(),
		CircuitOpen:       c.manager.CircuitOpen(),
		ReconnectAttempts: c.manager.ReconnectAttempts(),
		LastHeartbeatRTT:  c.LastHeartbeatRTT(),
		Inconsistent:      before == transport.StateConnected && state != transport.StateConnected,
	}
	h.Summary = h.summary()
	return h
}

func (h Health) summary() string {
	if h.Inconsistent {
		return "state mismatch detected: transport was not open while connected; recovering"
	}
	switch {
	case h.CircuitOpen:
		return "circuit breaker open, reconnection suppressed"
	case h.Connected && h.QueueLength > 0:
		return fmt.Sprintf("connected, draining %d queued messages", h.QueueLength)
	case h.Connected:
		return "connected"
	case h.State == transport.StateReconnecting:
		return fmt.Sprintf("reconnecting (attempt %d)", h.ReconnectAttempts)
	case h.State == transport.StateConnecting:
		return "connecting"
	case h.QueueLength > 0:
		return fmt.Sprintf("%s, %d messages queued", h.State, h.QueueLength)
	default:
		return h.State.String()
	}
}
