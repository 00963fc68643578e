// Package transport implements the resilient connection layer: a WebSocket
// connection state machine with reconnection, exponential backoff, a circuit
// breaker, heartbeating, and typed lifecycle events.
//
// A [Manager] exclusively owns the underlying socket. Higher layers never
// touch the transport directly; they write through [Manager.Send] and observe
// lifecycle changes through [Manager.Subscribe].
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/streamlation/audiolink/pkg/wire"
)

// MessageHandler receives inbound messages. binary reports whether the frame
// was a binary frame. Handlers run on the Manager's read goroutine; panics
// are contained and logged.
type MessageHandler func(data []byte, binary bool)

// pendingConnect is the shared outcome of one connection attempt. Concurrent
// Connect calls during the same attempt all wait on the same instance, so a
// second call never opens a second socket.
type pendingConnect struct {
	done chan struct{}
	err  error
	once sync.Once
}

func (p *pendingConnect) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Manager owns one logical server connection and drives it through the
// connection state machine. All methods are safe for concurrent use.
type Manager struct {
	url    string
	dialer Dialer

	connectTimeout       time.Duration
	heartbeatInterval    time.Duration
	reconnectDelay       time.Duration
	maxReconnectDelay    time.Duration
	maxReconnectAttempts int

	notifier *Notifier

	mu            sync.Mutex
	state         State
	conn          Conn
	gen           int // connection generation; stale read loops are ignored
	attempts      int
	autoReconnect bool
	breaker       breaker
	pending       *pendingConnect
	onMessage     MessageHandler

	heartbeatTimer *time.Timer
	reconnectTimer *time.Timer
	cooldownTimer  *time.Timer
}

// New creates a Manager for the given ws:// or wss:// endpoint. The endpoint
// is validated synchronously; a bad URL is a configuration error, not a
// connection error.
func New(endpoint string, opts ...Option) (*Manager, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, endpoint, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q (want ws:// or wss://)", ErrInvalidURL, endpoint)
	}

	m := &Manager{
		url:               endpoint,
		dialer:            wsDialer{},
		connectTimeout:    defaultConnectTimeout,
		heartbeatInterval: defaultHeartbeatInterval,
		reconnectDelay:    defaultReconnectDelay,
		maxReconnectDelay: defaultMaxReconnectDelay,
		autoReconnect:     true,
		notifier:          NewNotifier(),
		state:             StateDisconnected,
		breaker: breaker{
			threshold: defaultBreakerThreshold,
			cooldown:  defaultBreakerCooldown,
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// URL returns the configured endpoint.
func (m *Manager) URL() string { return m.url }

// Subscribe registers a listener for connection events and returns its
// unsubscribe function.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	return m.notifier.Subscribe(fn)
}

// OnMessage sets the handler for inbound messages. Set it before connecting;
// messages arriving with no handler are dropped.
func (m *Manager) OnMessage(fn MessageHandler) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// SetAutoReconnect toggles automatic reconnection at runtime.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	m.autoReconnect = enabled
	m.mu.Unlock()
}

// State returns the current logical state without reconciling it against the
// physical socket. Use [Manager.Reconcile] at checkpoints that must not act
// on stale state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CircuitOpen reports whether the circuit breaker currently suppresses
// reconnection.
func (m *Manager) CircuitOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breaker.isOpen(time.Now())
}

// ReconnectAttempts returns the current consecutive reconnect attempt count.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect establishes the connection. It is idempotent: while Connecting it
// waits for the in-flight attempt's outcome, and while Connected it returns
// immediately. An explicit Connect closes an open circuit breaker and resets
// the attempt counter, so it always resumes a Manager that reported
// reconnect exhaustion.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	var evs []Event
	if m.breaker.isOpen(time.Now()) {
		m.breaker.close()
		stopTimer(&m.cooldownTimer)
		evs = append(evs, CircuitCloseEvent{})
	}

	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		m.publish(evs)
		return nil
	case StateConnecting:
		p := m.pending
		m.mu.Unlock()
		m.publish(evs)
		return awaitConnect(ctx, p)
	case StateClosing:
		m.mu.Unlock()
		m.publish(evs)
		return fmt.Errorf("transport: connect while disconnecting")
	}

	// Disconnected, Error, or Reconnecting: start a fresh attempt now and
	// cancel any scheduled one.
	stopTimer(&m.reconnectTimer)
	m.attempts = 0
	p := &pendingConnect{done: make(chan struct{})}
	m.pending = p
	m.setStateLocked(StateConnecting, &evs)
	m.mu.Unlock()

	m.publish(evs)
	go m.dial(p)
	return awaitConnect(ctx, p)
}

func awaitConnect(ctx context.Context, p *pendingConnect) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dial performs one connection attempt and resolves p with its outcome.
func (m *Manager) dial(p *pendingConnect) {
	dctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	defer cancel()
	conn, err := m.dialer.Dial(dctx, m.url)

	m.mu.Lock()
	if m.pending != p {
		// A disconnect superseded this attempt while the dial was in flight.
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close(CloseNormal, "superseded")
		}
		p.finish(ErrHandshakeAborted)
		return
	}
	m.pending = nil

	var evs []Event
	if err != nil {
		failErr := err
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			failErr = fmt.Errorf("%w after %s", ErrConnectTimeout, m.connectTimeout)
		}
		m.conn = nil
		m.setStateLocked(StateError, &evs)
		evs = append(evs, ErrorEvent{Err: failErr})
		if m.breaker.recordFailure(time.Now()) {
			slog.Warn("circuit breaker opened",
				"url", m.url,
				"failures", m.breaker.failures,
				"cooldown", m.breaker.cooldown,
			)
			evs = append(evs, CircuitOpenEvent{Cooldown: m.breaker.cooldown})
			m.cooldownTimer = time.AfterFunc(m.breaker.cooldown, m.cooldownElapsed)
		}
		m.scheduleReconnectLocked(&evs)
		m.mu.Unlock()

		m.publish(evs)
		p.finish(failErr)
		return
	}

	m.conn = conn
	m.gen++
	gen := m.gen
	m.attempts = 0
	m.breaker.recordSuccess()
	m.setStateLocked(StateConnected, &evs)
	evs = append(evs, OpenEvent{})
	m.scheduleHeartbeatLocked()
	m.mu.Unlock()

	m.publish(evs)
	go m.readLoop(conn, gen)
	p.finish(nil)
}

// Disconnect deliberately closes the connection with the given close code.
// It cancels every outstanding timer, never triggers reconnection, and is a
// no-op when already Disconnected or Closing.
func (m *Manager) Disconnect(code int, reason string) {
	m.mu.Lock()
	if m.state == StateDisconnected || m.state == StateClosing {
		m.mu.Unlock()
		return
	}
	var evs []Event
	m.setStateLocked(StateClosing, &evs)
	stopTimer(&m.heartbeatTimer)
	stopTimer(&m.reconnectTimer)
	stopTimer(&m.cooldownTimer)
	conn := m.conn
	m.conn = nil
	m.gen++
	p := m.pending
	m.pending = nil
	m.attempts = 0
	m.setStateLocked(StateDisconnected, &evs)
	evs = append(evs, CloseEvent{Code: code, Reason: reason})
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(code, reason)
	}
	if p != nil {
		p.finish(ErrHandshakeAborted)
	}
	m.publish(evs)
}

// Send writes one message to the open socket. Before writing it reconciles
// the logical state against the socket; a dead socket under a Connected
// state yields ErrNotConnected rather than a stale-state write.
func (m *Manager) Send(ctx context.Context, data []byte, binary bool) error {
	m.mu.Lock()
	var evs []Event
	state := m.reconcileLocked(&evs)
	conn := m.conn
	m.mu.Unlock()
	m.publish(evs)

	if state != StateConnected || conn == nil {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, state)
	}
	return conn.Write(ctx, data, binary)
}

// Reconcile checks the logical state against the physical socket and forces
// a transition to Error when they disagree. It returns the authoritative
// state. Called internally before writes and by health diagnostics.
func (m *Manager) Reconcile() State {
	m.mu.Lock()
	var evs []Event
	state := m.reconcileLocked(&evs)
	m.mu.Unlock()
	m.publish(evs)
	return state
}

// TransportReady reports whether the physical socket is open, after
// reconciliation.
func (m *Manager) TransportReady() bool {
	m.mu.Lock()
	var evs []Event
	m.reconcileLocked(&evs)
	ready := m.conn != nil && m.conn.Alive()
	m.mu.Unlock()
	m.publish(evs)
	return ready
}

func (m *Manager) reconcileLocked(evs *[]Event) State {
	if m.state == StateConnected && (m.conn == nil || !m.conn.Alive()) {
		slog.Warn("state mismatch: logical state is connected but socket is not open",
			"url", m.url,
		)
		stopTimer(&m.heartbeatTimer)
		m.conn = nil
		m.gen++
		m.setStateLocked(StateError, evs)
		*evs = append(*evs, ErrorEvent{Err: ErrNotConnected})
		m.scheduleReconnectLocked(evs)
	}
	return m.state
}

// ── internals ─────────────────────────────────────────────────────────────────

// readLoop pumps inbound messages for one connection generation. A read
// error on the current generation tears the connection down; errors from
// superseded generations are ignored.
func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		data, binary, err := conn.Read(context.Background())
		if err != nil {
			code, reason := closeStatus(err)
			m.connectionLost(gen, code, reason)
			return
		}
		m.dispatchMessage(data, binary)
	}
}

func (m *Manager) dispatchMessage(data []byte, binary bool) {
	m.mu.Lock()
	handler := m.onMessage
	m.mu.Unlock()
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("inbound message handler panicked", "panic", r)
		}
	}()
	handler(data, binary)
}

// connectionLost handles an unexpected connection teardown: transition to
// Disconnected, then schedule a reconnect unless the server closed normally.
func (m *Manager) connectionLost(gen int, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	slog.Info("connection lost", "url", m.url, "code", code, "reason", reason)
	stopTimer(&m.heartbeatTimer)
	conn := m.conn
	m.conn = nil
	m.gen++

	var evs []Event
	m.setStateLocked(StateDisconnected, &evs)
	evs = append(evs, CloseEvent{Code: code, Reason: reason})
	if code != CloseNormal {
		m.scheduleReconnectLocked(&evs)
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(CloseNormal, "teardown")
	}
	m.publish(evs)
}

// scheduleReconnectLocked arms the backoff timer for the next reconnect
// attempt if the Manager is eligible: auto-reconnect on, circuit closed, and
// attempts remaining under the configured maximum.
func (m *Manager) scheduleReconnectLocked(evs *[]Event) {
	if !m.autoReconnect {
		return
	}
	if m.breaker.isOpen(time.Now()) {
		return
	}
	if m.maxReconnectAttempts > 0 && m.attempts >= m.maxReconnectAttempts {
		slog.Warn("reconnect attempts exhausted", "url", m.url, "attempts", m.attempts)
		*evs = append(*evs, ReconnectFailedEvent{Attempts: m.attempts})
		return
	}

	delay := backoffDelay(m.reconnectDelay, m.maxReconnectDelay, m.attempts)
	m.attempts++
	m.setStateLocked(StateReconnecting, evs)
	*evs = append(*evs, ReconnectingEvent{Attempt: m.attempts, Delay: delay})
	slog.Debug("reconnect scheduled", "url", m.url, "attempt", m.attempts, "delay", delay)

	stopTimer(&m.reconnectTimer)
	m.reconnectTimer = time.AfterFunc(delay, m.reconnectNow)
}

// reconnectNow fires from the backoff timer and starts the next attempt.
func (m *Manager) reconnectNow() {
	m.mu.Lock()
	if m.state != StateReconnecting || m.breaker.isOpen(time.Now()) {
		m.mu.Unlock()
		return
	}
	var evs []Event
	p := &pendingConnect{done: make(chan struct{})}
	m.pending = p
	m.setStateLocked(StateConnecting, &evs)
	m.mu.Unlock()

	m.publish(evs)
	go m.dial(p)
}

// cooldownElapsed fires when the circuit breaker cooldown passes: the
// circuit closes and exactly one automatic attempt is made.
func (m *Manager) cooldownElapsed() {
	m.mu.Lock()
	if !m.breaker.open {
		m.mu.Unlock()
		return
	}
	m.breaker.close()
	evs := []Event{CircuitCloseEvent{}}
	switch m.state {
	case StateError, StateDisconnected, StateReconnecting:
		m.scheduleReconnectLocked(&evs)
	}
	m.mu.Unlock()
	m.publish(evs)
}

// sendHeartbeat writes one keepalive. A failed keepalive means the
// connection is silently dead: the socket is torn down and reconnection is
// attempted, never surfaced as a fatal error.
func (m *Manager) sendHeartbeat() {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	gen := m.gen
	m.mu.Unlock()

	payload, err := json.Marshal(wire.NewHeartbeatMessage(time.Now()))
	if err != nil {
		slog.Error("marshal heartbeat", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), heartbeatWriteTimeout)
	err = conn.Write(ctx, payload, false)
	cancel()
	if err != nil {
		slog.Warn("heartbeat send failed, treating connection as broken", "url", m.url, "err", err)
		m.connectionLost(gen, closeCodeAbnormal, "heartbeat failed")
		return
	}

	m.mu.Lock()
	if m.state == StateConnected && m.gen == gen {
		m.scheduleHeartbeatLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) scheduleHeartbeatLocked() {
	stopTimer(&m.heartbeatTimer)
	m.heartbeatTimer = time.AfterFunc(m.heartbeatInterval, m.sendHeartbeat)
}

func (m *Manager) setStateLocked(s State, evs *[]Event) {
	if m.state == s {
		return
	}
	from := m.state
	m.state = s
	slog.Debug("connection state changed", "url", m.url, "from", from, "to", s)
	*evs = append(*evs, StateChangeEvent{From: from, To: s})
}

// publish delivers events after the Manager's mutex has been released, so a
// listener may safely call back into the Manager.
func (m *Manager) publish(evs []Event) {
	for _, ev := range evs {
		m.notifier.Publish(ev)
	}
}

// backoffDelay returns min(base × 1.5^attempt, max) for the zero-based
// attempt index.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(1.5, float64(attempt)))
	if d <= 0 || d > max {
		return max
	}
	return d
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
