package client_test

import (
	"testing"
	"time"

	"github.com/streamlation/audiolink/pkg/client"
	"github.com/streamlation/audiolink/pkg/transport"
	"github.com/streamlation/audiolink/pkg/transport/mock"
)

func testFactory(t *testing.T, created *int) func(string) (*client.Client, error) {
	t.Helper()
	return func(endpoint string) (*client.Client, error) {
		*created++
		return client.New(endpoint,
			client.WithMetrics(isolatedMetrics(t)),
			client.WithTransportOptions(
				transport.WithDialer(&mock.Dialer{}),
				transport.WithReconnectDelay(5*time.Millisecond),
			),
		)
	}
}

func TestRegistry_SharesPerURL(t *testing.T) {
	created := 0
	r := client.NewRegistry(testFactory(t, &created))
	t.Cleanup(r.Close)

	a, err := r.Get("ws://server.test/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := r.Get("ws://server.test/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Error("same URL returned different clients")
	}

	other, err := r.Get("ws://server.test/b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if other == a {
		t.Error("different URLs share a client")
	}
	if created != 2 {
		t.Errorf("factory invocations: got %d, want 2", created)
	}
}

func TestRegistry_DisposeCreatesFresh(t *testing.T) {
	created := 0
	r := client.NewRegistry(testFactory(t, &created))
	t.Cleanup(r.Close)

	a, err := r.Get("ws://server.test/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	r.Dispose("ws://server.test/a")

	b, err := r.Get("ws://server.test/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a == b {
		t.Error("disposed client was reused")
	}
	if created != 2 {
		t.Errorf("factory invocations: got %d, want 2", created)
	}
}

func TestRegistry_InvalidEndpoint(t *testing.T) {
	r := client.NewRegistry(nil)
	t.Cleanup(r.Close)
	if _, err := r.Get("http://not-a-websocket"); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}
