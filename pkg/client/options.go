package client

import (
	"github.com/streamlation/audiolink/internal/observe"
	"github.com/streamlation/audiolink/pkg/transport"
)

type settings struct {
	queueSize int
	metrics   *observe.Metrics
	transport []transport.Option
}

// Option customises a Client.
type Option func(*settings)

// WithQueueSize bounds the outbound message queue. Zero selects the
// default of queue.DefaultMaxSize.
func WithQueueSize(n int) Option {
	return func(s *settings) { s.queueSize = n }
}

// WithMetrics overrides the metrics instance, primarily for tests that need
// isolation from the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTransportOptions forwards options to the underlying connection
// manager, such as transport.WithHeartbeatInterval.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(s *settings) { s.transport = append(s.transport, opts...) }
}
