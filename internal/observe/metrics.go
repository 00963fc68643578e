// Package observe provides application-wide observability primitives for
// audiolink: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware for the diagnostics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all audiolink metrics.
const meterName = "github.com/streamlation/audiolink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// ConnectAttempts counts connection attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ConnectAttempts metric.Int64Counter

	// Reconnects counts automatic reconnection cycles.
	Reconnects metric.Int64Counter

	// CircuitOpens counts circuit breaker openings.
	CircuitOpens metric.Int64Counter

	// MessagesSent counts messages written to the transport. Use with
	// attribute: attribute.String("path", "immediate"|"queued")
	MessagesSent metric.Int64Counter

	// MessagesDropped counts messages lost before transmission. Use with
	// attribute: attribute.String("reason", "overflow"|"invalid"|"send_failed")
	MessagesDropped metric.Int64Counter

	// AudioBytesSent counts PCM bytes shipped by the streaming bridge.
	AudioBytesSent metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of messages waiting in the outbound queue.
	QueueDepth metric.Int64UpDownCounter

	// --- Latency histograms ---

	// FlushDuration tracks audio buffer flush latency, connect wait included.
	FlushDuration metric.Float64Histogram

	// HeartbeatRTT tracks heartbeat round-trip time to the server.
	HeartbeatRTT metric.Float64Histogram

	// HTTPRequestDuration tracks diagnostics endpoint request processing
	// time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for real-time streaming latencies.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.ConnectAttempts, err = m.Int64Counter("audiolink.connect.attempts",
		metric.WithDescription("Total connection attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("audiolink.reconnects",
		metric.WithDescription("Total automatic reconnection cycles."),
	); err != nil {
		return nil, err
	}
	if met.CircuitOpens, err = m.Int64Counter("audiolink.circuit.opens",
		metric.WithDescription("Total circuit breaker openings."),
	); err != nil {
		return nil, err
	}
	if met.MessagesSent, err = m.Int64Counter("audiolink.messages.sent",
		metric.WithDescription("Total messages written to the transport by path."),
	); err != nil {
		return nil, err
	}
	if met.MessagesDropped, err = m.Int64Counter("audiolink.messages.dropped",
		metric.WithDescription("Total messages lost before transmission by reason."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesSent, err = m.Int64Counter("audiolink.audio.bytes_sent",
		metric.WithDescription("Total PCM bytes shipped by the streaming bridge."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("audiolink.queue.depth",
		metric.WithDescription("Messages currently waiting in the outbound queue."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.FlushDuration, err = m.Float64Histogram("audiolink.flush.duration",
		metric.WithDescription("Latency of audio buffer flushes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HeartbeatRTT, err = m.Float64Histogram("audiolink.heartbeat.rtt",
		metric.WithDescription("Heartbeat round-trip time to the server."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("audiolink.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordConnectAttempt counts one connection attempt with its outcome.
func (m *Metrics) RecordConnectAttempt(ctx context.Context, status string) {
	m.ConnectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordMessageSent counts one transmitted message. path is "immediate" for
// direct writes and "queued" for messages drained from the queue.
func (m *Metrics) RecordMessageSent(ctx context.Context, path string) {
	m.MessagesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// RecordMessageDropped counts one lost message with the drop reason.
func (m *Metrics) RecordMessageDropped(ctx context.Context, reason string) {
	m.MessagesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: creating default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
