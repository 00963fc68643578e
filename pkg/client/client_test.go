package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/streamlation/audiolink/internal/observe"
	"github.com/streamlation/audiolink/pkg/client"
	"github.com/streamlation/audiolink/pkg/transport"
	"github.com/streamlation/audiolink/pkg/transport/mock"
	"github.com/streamlation/audiolink/pkg/wire"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// isolatedMetrics returns a Metrics instance detached from the global meter
// provider so tests do not pollute each other.
func isolatedMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestClient(t *testing.T, d *mock.Dialer, opts ...client.Option) *client.Client {
	t.Helper()
	base := []client.Option{
		client.WithMetrics(isolatedMetrics(t)),
		client.WithTransportOptions(
			transport.WithDialer(d),
			transport.WithReconnectDelay(5*time.Millisecond),
			transport.WithMaxReconnectDelay(50*time.Millisecond),
			transport.WithHeartbeatInterval(time.Minute),
		),
	}
	c, err := client.New("ws://server.test/stream", append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func audioPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(wire.NewAudioMessage([]byte{0x00, 0x01}, 16000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func TestSend_WhileDisconnectedQueuesAndConnects(t *testing.T) {
	d := &mock.Dialer{Block: make(chan struct{})}
	c := newTestClient(t, d)

	if err := c.Send(context.Background(), audioPayload(t), client.PriorityAudio, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := c.QueueLength(); got != 1 {
		t.Errorf("queue length: got %d, want 1", got)
	}
	waitFor(t, time.Second, func() bool { return d.DialCount() == 1 }, "opportunistic connect")

	close(d.Block)
	waitFor(t, time.Second, func() bool {
		conn := d.LastConn()
		return conn != nil && conn.WriteCount() == 1 && c.QueueLength() == 0
	}, "queued message transmitted after connect")
}

func TestSend_InvalidKnownTypeRejected(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)

	// Claims the audio type but carries no value.
	err := c.Send(context.Background(), []byte(`{"type":"audio"}`), client.PriorityAudio, true)
	if !errors.Is(err, wire.ErrSchemaValidation) {
		t.Fatalf("expected ErrSchemaValidation, got %v", err)
	}
	if c.QueueLength() != 0 {
		t.Error("rejected payload was queued")
	}
	if d.DialCount() != 0 {
		t.Error("rejected payload triggered a connect")
	}
}

func TestSend_ImmediateWhenConnected(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.Send(context.Background(), audioPayload(t), client.PriorityAudio, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := d.LastConn().WriteCount(); got != 1 {
		t.Errorf("write count: got %d, want 1", got)
	}
	if c.QueueLength() != 0 {
		t.Error("immediate send left a queued message")
	}
}

func TestSend_UnknownShapePassesValidation(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.Send(context.Background(), []byte(`{"type":"session_config","vad":true}`), client.PriorityControl, false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := d.LastConn().WriteCount(); got != 1 {
		t.Errorf("write count: got %d, want 1", got)
	}
}

func TestSend_RetryRequeuesOnWriteFailure(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d.LastConn().SetWriteErr(errors.New("broken pipe"))

	if err := c.Send(context.Background(), audioPayload(t), client.PriorityAudio, true); err != nil {
		t.Fatalf("Send with retry: %v", err)
	}
	if got := c.QueueLength(); got != 1 {
		t.Errorf("queue length after retryable failure: got %d, want 1", got)
	}

	if err := c.Send(context.Background(), audioPayload(t), client.PriorityAudio, false); err == nil {
		t.Fatal("Send without retry: expected error")
	}
	if got := c.QueueLength(); got != 1 {
		t.Errorf("non-retryable failure was queued: length %d", got)
	}
}

func TestProcessQueue_DrainsInPriorityOrder(t *testing.T) {
	d := &mock.Dialer{Block: make(chan struct{})}
	c := newTestClient(t, d)

	ctx := context.Background()
	if err := c.Send(ctx, []byte(`{"k":"bulk"}`), client.PriorityBulk, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send(ctx, []byte(`{"k":"control"}`), client.PriorityControl, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send(ctx, []byte(`{"k":"audio"}`), client.PriorityAudio, true); err != nil {
		t.Fatalf("Send: %v", err)
	}

	close(d.Block)
	waitFor(t, time.Second, func() bool {
		conn := d.LastConn()
		return conn != nil && conn.WriteCount() == 3
	}, "queue drain")

	conn := d.LastConn()
	want := []string{`{"k":"control"}`, `{"k":"audio"}`, `{"k":"bulk"}`}
	for i, w := range want {
		if got := string(conn.WriteAt(i).Data); got != w {
			t.Errorf("write %d: got %s, want %s", i, got, w)
		}
	}
}

func TestProcessQueue_ReschedulesAcrossBatches(t *testing.T) {
	d := &mock.Dialer{Block: make(chan struct{})}
	c := newTestClient(t, d, client.WithQueueSize(200))

	ctx := context.Background()
	const total = 120 // more than two drain batches
	for i := range total {
		payload := fmt.Sprintf(`{"n":%d}`, i)
		if err := c.Send(ctx, []byte(payload), client.PriorityBulk, true); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if got := c.QueueLength(); got != total {
		t.Fatalf("queue length: got %d, want %d", got, total)
	}

	close(d.Block)
	waitFor(t, 2*time.Second, func() bool {
		conn := d.LastConn()
		return conn != nil && conn.WriteCount() == total && c.QueueLength() == 0
	}, "full backlog drained across batches")
}

func TestSetTargetLanguage(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.SetTargetLanguage(context.Background(), "english"); !errors.Is(err, wire.ErrSchemaValidation) {
		t.Errorf("invalid code: expected ErrSchemaValidation, got %v", err)
	}

	if err := c.SetTargetLanguage(context.Background(), "de"); err != nil {
		t.Fatalf("SetTargetLanguage: %v", err)
	}
	var msg struct {
		Type     string `json:"type"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(d.LastConn().WriteAt(0).Data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "target_language" || msg.Language != "de" {
		t.Errorf("unexpected frame: %+v", msg)
	}
}

func TestOnTranslation(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)

	var mu sync.Mutex
	var got []wire.Translation
	c.OnTranslation(func(tr wire.Translation) {
		mu.Lock()
		got = append(got, tr)
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d.LastConn().Deliver([]byte(`{"text":"hallo","source_language":"en","target_language":"de"}`), false)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "translation callback")

	mu.Lock()
	defer mu.Unlock()
	if got[0].Text != "hallo" || got[0].SourceLanguage != "en" || got[0].TargetLanguage != "de" {
		t.Errorf("translation: %+v", got[0])
	}
}

func TestHeartbeatRTT_Tracked(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sent := time.Now().Add(-20 * time.Millisecond).UnixMilli()
	frame := fmt.Sprintf(`{"type":"heartbeat_response","server_timestamp":%d,"client_timestamp":%d}`,
		time.Now().UnixMilli(), sent)
	d.LastConn().Deliver([]byte(frame), false)

	waitFor(t, time.Second, func() bool { return c.LastHeartbeatRTT() >= 20*time.Millisecond }, "rtt measurement")
}

func TestHealth_Snapshots(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d)

	h := c.Health()
	if h.Connected || h.State != transport.StateDisconnected || h.Summary != "disconnected" {
		t.Errorf("disconnected health: %+v", h)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h = c.Health()
	if !h.Connected || !h.TransportReady || h.Summary != "connected" {
		t.Errorf("connected health: %+v", h)
	}
}

func TestHealth_FlagsStateMismatch(t *testing.T) {
	d := &mock.Dialer{}
	c := newTestClient(t, d, client.WithTransportOptions(transport.WithAutoReconnect(false)))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.LastConn().KillSilently()

	h := c.Health()
	if !h.Inconsistent {
		t.Error("health did not flag the state mismatch")
	}
	if h.Connected || h.TransportReady {
		t.Errorf("mismatch snapshot still claims readiness: %+v", h)
	}
}
