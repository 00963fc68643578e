package transport

import (
	"log/slog"
	"sync"
	"time"
)

// Event is the closed set of connection lifecycle notifications published by
// a [Manager]. Concrete types: [OpenEvent], [CloseEvent], [ErrorEvent],
// [StateChangeEvent], [ReconnectingEvent], [ReconnectFailedEvent],
// [CircuitOpenEvent], [CircuitCloseEvent].
type Event interface{ isEvent() }

// OpenEvent is published when the socket opens.
type OpenEvent struct{}

// CloseEvent is published when the socket closes, deliberately or not.
type CloseEvent struct {
	Code   int
	Reason string
}

// ErrorEvent is published when a connection attempt or the connection itself
// fails. The same error also rejects the specific pending operation; the
// event exists for passive observers.
type ErrorEvent struct{ Err error }

// StateChangeEvent is published on every logical state transition.
type StateChangeEvent struct {
	From State
	To   State
}

// ReconnectingEvent is published when a reconnect attempt has been scheduled.
type ReconnectingEvent struct {
	Attempt int
	Delay   time.Duration
}

// ReconnectFailedEvent is the terminal signal that automatic reconnection has
// been exhausted. The Manager remains usable; a manual Connect resumes.
type ReconnectFailedEvent struct{ Attempts int }

// CircuitOpenEvent is published when the circuit breaker opens.
type CircuitOpenEvent struct{ Cooldown time.Duration }

// CircuitCloseEvent is published when the circuit breaker closes again.
type CircuitCloseEvent struct{}

func (OpenEvent) isEvent()            {}
func (CloseEvent) isEvent()           {}
func (ErrorEvent) isEvent()           {}
func (StateChangeEvent) isEvent()     {}
func (ReconnectingEvent) isEvent()    {}
func (ReconnectFailedEvent) isEvent() {}
func (CircuitOpenEvent) isEvent()     {}
func (CircuitCloseEvent) isEvent()    {}

// Notifier is a typed observer registry for connection events. It is safe
// for concurrent use. Listener panics are contained and logged; no listener
// failure propagates to the publisher.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewNotifier returns an empty, ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for all future events and returns a function that
// removes the subscription. Unsubscribing twice is harmless.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Publish delivers ev to every current subscriber in the caller's goroutine.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	fns := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		dispatch(fn, ev)
	}
}

func dispatch(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked", "event", eventName(ev), "panic", r)
		}
	}()
	fn(ev)
}

func eventName(ev Event) string {
	switch ev.(type) {
	case OpenEvent:
		return "open"
	case CloseEvent:
		return "close"
	case ErrorEvent:
		return "error"
	case StateChangeEvent:
		return "state_change"
	case ReconnectingEvent:
		return "reconnecting"
	case ReconnectFailedEvent:
		return "reconnect_failed"
	case CircuitOpenEvent:
		return "circuit_open"
	case CircuitCloseEvent:
		return "circuit_close"
	default:
		return "unknown"
	}
}
