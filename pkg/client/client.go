// Package client provides the high-level streaming client: a façade
// combining the connection manager, the outbound priority queue, and the
// wire codec. Callers send payloads and subscribe to lifecycle events here
// instead of touching the transport directly.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamlation/audiolink/internal/observe"
	"github.com/streamlation/audiolink/pkg/queue"
	"github.com/streamlation/audiolink/pkg/transport"
	"github.com/streamlation/audiolink/pkg/wire"
)

// Priority levels for outbound messages. Lower values are transmitted first.
const (
	// PriorityControl is for protocol control traffic such as language
	// changes; it must never starve behind audio.
	PriorityControl = 0

	// PriorityAudio is for real-time audio payloads.
	PriorityAudio = 1

	// PriorityBulk is for everything that tolerates delay.
	PriorityBulk = 2
)

// drainBatchSize bounds how many queued messages one ProcessQueue pass
// transmits before yielding.
const drainBatchSize = 50

// Client is the high-level streaming client. All methods are safe for
// concurrent use.
type Client struct {
	manager *transport.Manager
	queue   *queue.Queue
	metrics *observe.Metrics

	mu            sync.Mutex
	onTranslation func(wire.Translation)
	lastRTT       time.Duration
	draining      bool

	unsubscribe func()
}

// New creates a Client for the given ws:// or wss:// endpoint. The endpoint
// is validated synchronously.
func New(endpoint string, opts ...Option) (*Client, error) {
	s := settings{queueSize: 0}
	for _, o := range opts {
		o(&s)
	}

	mgr, err := transport.New(endpoint, s.transport...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		manager: mgr,
		queue:   queue.New(s.queueSize),
		metrics: s.metrics,
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	mgr.OnMessage(c.handleMessage)
	c.unsubscribe = mgr.Subscribe(c.handleEvent)
	return c, nil
}

// URL returns the configured endpoint.
func (c *Client) URL() string { return c.manager.URL() }

// State returns the current connection state.
func (c *Client) State() transport.State { return c.manager.State() }

// QueueLength returns the number of messages waiting for transmission.
func (c *Client) QueueLength() int { return c.queue.Len() }

// Subscribe registers a listener for connection events and returns its
// unsubscribe function.
func (c *Client) Subscribe(fn func(transport.Event)) (unsubscribe func()) {
	return c.manager.Subscribe(fn)
}

// OnTranslation sets the handler invoked for every inbound translation
// result.
func (c *Client) OnTranslation(fn func(wire.Translation)) {
	c.mu.Lock()
	c.onTranslation = fn
	c.mu.Unlock()
}

// LastHeartbeatRTT returns the most recently measured heartbeat round-trip
// time, or zero when no heartbeat has been acknowledged yet.
func (c *Client) LastHeartbeatRTT() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRTT
}

// Connect establishes the connection. Idempotent; see
// [transport.Manager.Connect].
func (c *Client) Connect(ctx context.Context) error {
	err := c.manager.Connect(ctx)
	if err != nil {
		c.metrics.RecordConnectAttempt(ctx, "error")
		return err
	}
	c.metrics.RecordConnectAttempt(ctx, "ok")
	return nil
}

// Disconnect deliberately closes the connection. Queued messages are kept
// and transmitted after the next Connect.
func (c *Client) Disconnect(code int, reason string) {
	c.manager.Disconnect(code, reason)
}

// Close disconnects and detaches the Client from its transport events.
func (c *Client) Close() {
	c.manager.Disconnect(transport.CloseNormal, "client closed")
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Send transmits a textual payload. Payloads claiming a known message type
// are schema-validated first and rejected before ever reaching the
// transport. When the connection is down the payload is queued, and a
// connect is triggered opportunistically if the Client is idle. An
// immediate-write failure with retry set requeues instead of failing the
// call, so callers are not blocked by transient network trouble.
func (c *Client) Send(ctx context.Context, payload []byte, priority int, retry bool) error {
	if err := wire.ValidateOutbound(payload); err != nil {
		c.metrics.RecordMessageDropped(ctx, "invalid")
		return err
	}
	return c.send(ctx, payload, false, priority, retry)
}

// SendBinary transmits a binary frame, typically an audio envelope built
// with [wire.EncodeBinaryEnvelope]. Binary payloads are not schema-validated.
func (c *Client) SendBinary(ctx context.Context, payload []byte, priority int, retry bool) error {
	return c.send(ctx, payload, true, priority, retry)
}

// SetTargetLanguage asks the server to switch the translation target to the
// given two-letter language code.
func (c *Client) SetTargetLanguage(ctx context.Context, language string) error {
	if !wire.ValidLanguageCode(language) {
		return fmt.Errorf("%w: language %q", wire.ErrSchemaValidation, language)
	}
	payload, err := json.Marshal(wire.NewTargetLanguageMessage(language))
	if err != nil {
		return fmt.Errorf("client: marshal target language: %w", err)
	}
	return c.send(ctx, payload, false, PriorityControl, true)
}

func (c *Client) send(ctx context.Context, payload []byte, binary bool, priority int, retry bool) error {
	state := c.manager.State()
	if state != transport.StateConnected {
		c.enqueue(ctx, payload, binary, priority, retry)
		if state == transport.StateDisconnected {
			go c.connectInBackground()
		}
		return nil
	}

	err := c.manager.Send(ctx, payload, binary)
	if err == nil {
		c.metrics.RecordMessageSent(ctx, "immediate")
		return nil
	}
	if retry {
		slog.Warn("send failed, queueing for retry", "url", c.URL(), "err", err)
		c.enqueue(ctx, payload, binary, priority, retry)
		return nil
	}
	c.metrics.RecordMessageDropped(ctx, "send_failed")
	return fmt.Errorf("client: send: %w", err)
}

func (c *Client) enqueue(ctx context.Context, payload []byte, binary bool, priority int, retry bool) {
	_, evicted := c.queue.Enqueue(payload, binary, priority, retry)
	c.metrics.QueueDepth.Add(ctx, 1)
	for range evicted {
		c.metrics.QueueDepth.Add(ctx, -1)
		c.metrics.RecordMessageDropped(ctx, "overflow")
	}
	if len(evicted) > 0 {
		slog.Warn("outbound queue overflow, evicted lowest-priority messages",
			"url", c.URL(),
			"evicted", len(evicted),
		)
	}
}

// connectInBackground runs an opportunistic connect triggered by a send
// while disconnected. Failures are logged, never surfaced: the send already
// succeeded into the queue and reconnection handles recovery.
func (c *Client) connectInBackground() {
	if err := c.Connect(context.Background()); err != nil {
		slog.Debug("opportunistic connect failed", "url", c.URL(), "err", err)
	}
}

// ProcessQueue drains at most one bounded batch of queued messages, then
// reschedules itself while messages remain and the connection holds. It
// never drains the full queue in one pass, so a large backlog cannot
// monopolise the connection. Invoked automatically whenever the connection
// opens.
func (c *Client) ProcessQueue(ctx context.Context) {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	again := c.drainBatch(ctx)

	c.mu.Lock()
	c.draining = false
	c.mu.Unlock()

	if again {
		go c.ProcessQueue(ctx)
	}
}

// drainBatch transmits up to drainBatchSize messages and reports whether
// another pass should run.
func (c *Client) drainBatch(ctx context.Context) bool {
	if c.manager.State() != transport.StateConnected {
		return false
	}

	batch := c.queue.Drain(drainBatchSize)
	for i, msg := range batch {
		c.metrics.QueueDepth.Add(ctx, -1)
		err := c.manager.Send(ctx, msg.Payload, msg.Binary)
		if err == nil {
			c.metrics.RecordMessageSent(ctx, "queued")
			continue
		}

		// The connection is in trouble. Put the failed message (and the
		// rest of the batch) back and stop; the next open event resumes.
		slog.Warn("queued send failed, suspending drain", "url", c.URL(), "err", err)
		rest := batch[i:]
		for j := len(rest) - 1; j >= 0; j-- {
			m := rest[j]
			if j == 0 && !m.Retry {
				c.metrics.RecordMessageDropped(ctx, "send_failed")
				continue
			}
			c.queue.Requeue(m)
			c.metrics.QueueDepth.Add(ctx, 1)
		}
		return false
	}
	return !c.queue.Empty() && c.manager.State() == transport.StateConnected
}

// handleEvent reacts to transport lifecycle events: an open connection
// starts a queue drain, and resilience events feed the metrics.
func (c *Client) handleEvent(ev transport.Event) {
	ctx := context.Background()
	switch ev.(type) {
	case transport.OpenEvent:
		if !c.queue.Empty() {
			go c.ProcessQueue(ctx)
		}
	case transport.ReconnectingEvent:
		c.metrics.Reconnects.Add(ctx, 1)
	case transport.CircuitOpenEvent:
		c.metrics.CircuitOpens.Add(ctx, 1)
	}
}

// handleMessage routes inbound frames to the translation callback and the
// heartbeat RTT tracker. Unrecognized frames are dropped with a debug log.
func (c *Client) handleMessage(data []byte, binary bool) {
	if binary {
		slog.Debug("ignoring inbound binary frame", "url", c.URL(), "len", len(data))
		return
	}
	msg, ok := wire.ParseInbound(data)
	if !ok {
		slog.Debug("unrecognized inbound message dropped", "url", c.URL(), "len", len(data))
		return
	}

	switch m := msg.(type) {
	case wire.HeartbeatResponse:
		if m.ClientTimestamp == nil {
			return
		}
		rtt := time.Since(time.UnixMilli(*m.ClientTimestamp))
		if rtt < 0 {
			return
		}
		c.mu.Lock()
		c.lastRTT = rtt
		c.mu.Unlock()
		c.metrics.HeartbeatRTT.Record(context.Background(), rtt.Seconds())
	case wire.Translation:
		c.mu.Lock()
		fn := c.onTranslation
		c.mu.Unlock()
		if fn != nil {
			fn(m)
		}
	}
}
