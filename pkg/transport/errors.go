package transport

import "errors"

var (
	// ErrInvalidURL is returned by [New] when the endpoint URL is missing or
	// does not use a ws:// or wss:// scheme.
	ErrInvalidURL = errors.New("transport: invalid endpoint URL")

	// ErrConnectTimeout is returned when a connection attempt does not
	// complete within the configured timeout.
	ErrConnectTimeout = errors.New("transport: connection attempt timed out")

	// ErrHandshakeAborted is returned when a connection attempt is cancelled
	// by a disconnect before the socket opened.
	ErrHandshakeAborted = errors.New("transport: connection closed during handshake")

	// ErrCircuitOpen indicates reconnection is currently suppressed by the
	// circuit breaker.
	ErrCircuitOpen = errors.New("transport: circuit breaker open")

	// ErrNotConnected is returned by [Manager.Send] when there is no open
	// socket to write to.
	ErrNotConnected = errors.New("transport: not connected")
)
