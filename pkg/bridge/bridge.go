// Package bridge implements the audio streaming bridge: it buffers incoming
// Float32 sample chunks, converts them to PCM16, and forwards batched audio
// through the streaming client.
//
// Audio is a best-effort real-time stream, not a durable log. When the
// connection cannot be established within a bounded wait, the affected flush
// is abandoned and the loss is counted, never surfaced as an error.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamlation/audiolink/internal/observe"
	"github.com/streamlation/audiolink/pkg/client"
	"github.com/streamlation/audiolink/pkg/pcm"
	"github.com/streamlation/audiolink/pkg/transport"
	"github.com/streamlation/audiolink/pkg/wire"
)

// Sender is the subset of [client.Client] the bridge transmits through.
type Sender interface {
	Send(ctx context.Context, payload []byte, priority int, retry bool) error
	SendBinary(ctx context.Context, payload []byte, priority int, retry bool) error
	Connect(ctx context.Context) error
	State() transport.State
}

const (
	defaultSampleRate     = 16000
	defaultMaxBufferBytes = 32 * 1024
	defaultFlushInterval  = 200 * time.Millisecond
	defaultConnectWait    = 5 * time.Second
)

// Bridge buffers and forwards audio. All methods are safe for concurrent
// use. A new Bridge starts disabled; call SetEnabled(true) to begin
// streaming.
type Bridge struct {
	sender  Sender
	metrics *observe.Metrics

	binaryMode     bool
	maxBufferBytes int
	flushInterval  time.Duration
	connectWait    time.Duration

	mu           sync.Mutex
	enabled      bool
	sampleRate   int
	seq          uint64
	pending      [][]float32
	pendingBytes int
	flushTimer   *time.Timer
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithBinaryMode selects the binary envelope wire format instead of the
// JSON/base64 one.
func WithBinaryMode(enabled bool) Option {
	return func(b *Bridge) { b.binaryMode = enabled }
}

// WithMaxBufferBytes sets the PCM byte count that triggers an immediate
// flush.
func WithMaxBufferBytes(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.maxBufferBytes = n
		}
	}
}

// WithFlushInterval sets how long buffered audio may wait before a timed
// flush.
func WithFlushInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.flushInterval = d
		}
	}
}

// WithConnectWait bounds how long a flush waits for the connection to come
// up before abandoning its audio.
func WithConnectWait(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.connectWait = d
		}
	}
}

// WithSampleRate sets the initial sample rate declared in audio metadata.
func WithSampleRate(rate int) Option {
	return func(b *Bridge) {
		if rate > 0 {
			b.sampleRate = rate
		}
	}
}

// WithMetrics overrides the metrics instance, primarily for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New creates a Bridge forwarding through the given sender.
func New(sender Sender, opts ...Option) *Bridge {
	b := &Bridge{
		sender:         sender,
		sampleRate:     defaultSampleRate,
		maxBufferBytes: defaultMaxBufferBytes,
		flushInterval:  defaultFlushInterval,
		connectWait:    defaultConnectWait,
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Enabled reports whether the bridge currently accepts audio.
func (b *Bridge) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// SampleRate returns the sample rate declared for subsequent flushes.
func (b *Bridge) SampleRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleRate
}

// PendingBytes returns the PCM byte count currently buffered.
func (b *Bridge) PendingBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingBytes
}

// SetEnabled toggles streaming. Disabling flushes any residual buffered
// audio first so nothing already captured is lost. Enabling establishes the
// connection in the background if needed.
func (b *Bridge) SetEnabled(enabled bool) {
	b.mu.Lock()
	if b.enabled == enabled {
		b.mu.Unlock()
		return
	}
	b.enabled = enabled
	if !enabled {
		b.flushLocked()
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if b.sender.State() != transport.StateConnected {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), b.connectWait)
			defer cancel()
			if err := b.sender.Connect(ctx); err != nil {
				slog.Warn("bridge enable: connect failed, streaming will retry on flush", "err", err)
			}
		}()
	}
}

// SetSampleRate changes the rate declared in audio metadata. Samples already
// buffered were captured at the old rate, so they are flushed first rather
// than relabelled.
func (b *Bridge) SetSampleRate(rate int) {
	if rate <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if rate == b.sampleRate {
		return
	}
	b.flushLocked()
	b.sampleRate = rate
}

// ProcessAudioChunk buffers one chunk of Float32 samples. It flushes
// immediately once the accumulated PCM bytes reach the configured threshold,
// otherwise arms the flush timer. A disabled bridge drops the chunk
// silently.
func (b *Bridge) ProcessAudioChunk(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled {
		return
	}

	// The caller may reuse its buffer; keep a private copy.
	chunk := make([]float32, len(samples))
	copy(chunk, samples)
	b.pending = append(b.pending, chunk)
	b.pendingBytes += len(chunk) * pcm.BytesPerSample

	if b.pendingBytes >= b.maxBufferBytes {
		b.flushLocked()
		return
	}
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.flushInterval, b.timedFlush)
	}
}

// Flush forces transmission of all buffered audio.
func (b *Bridge) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Bridge) timedFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushTimer = nil
	b.flushLocked()
}

// flushLocked snapshots and clears the pending buffer, then hands the
// snapshot to an asynchronous delivery. Clearing before the asynchronous
// connect/send sequence begins lets new audio accumulate concurrently and
// keeps one delivery per ordering slot.
func (b *Bridge) flushLocked() {
	if b.pendingBytes == 0 {
		return
	}
	chunks := b.pending
	rate := b.sampleRate
	b.seq++
	seq := b.seq

	b.pending = nil
	b.pendingBytes = 0
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}

	go b.deliver(chunks, rate, seq)
}

// deliver converts one flushed snapshot to wire format and sends it,
// establishing the connection first when necessary. Runs to completion once
// started; there is no safe rollback for partially sent audio.
func (b *Bridge) deliver(chunks [][]float32, rate int, seq uint64) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), b.connectWait)
	defer cancel()

	if b.sender.State() != transport.StateConnected {
		if err := b.sender.Connect(ctx); err != nil {
			slog.Warn("flush abandoned: connection unavailable", "seq", seq, "err", err)
			b.metrics.RecordMessageDropped(ctx, "send_failed")
			return
		}
	}

	pcmData := pcm.FloatToPCM16(pcm.Combine(chunks))
	payload, binary, err := b.encode(pcmData, rate, seq)
	if err != nil {
		slog.Error("encode audio flush", "seq", seq, "err", err)
		return
	}

	var sendErr error
	if binary {
		sendErr = b.sender.SendBinary(ctx, payload, client.PriorityAudio, true)
	} else {
		sendErr = b.sender.Send(ctx, payload, client.PriorityAudio, true)
	}
	if sendErr != nil {
		slog.Warn("audio flush send failed", "seq", seq, "err", sendErr)
		return
	}

	b.metrics.AudioBytesSent.Add(ctx, int64(len(pcmData)))
	b.metrics.FlushDuration.Record(ctx, time.Since(start).Seconds())
}

func (b *Bridge) encode(pcmData []byte, rate int, seq uint64) (payload []byte, binary bool, err error) {
	if b.binaryMode {
		meta := wire.NewAudioMetadata(rate, seq, len(pcmData), time.Now())
		env, err := wire.EncodeBinaryEnvelope(meta, pcmData)
		if err != nil {
			return nil, false, err
		}
		return env, true, nil
	}
	payload, err = json.Marshal(wire.NewAudioMessage(pcmData, rate))
	if err != nil {
		return nil, false, fmt.Errorf("marshal audio message: %w", err)
	}
	return payload, false, nil
}
