// Package mock provides a test double for the bridge's Sender interface.
package mock

import (
	"context"
	"sync"

	"github.com/streamlation/audiolink/pkg/bridge"
	"github.com/streamlation/audiolink/pkg/transport"
)

// SendCall records one Send or SendBinary invocation.
type SendCall struct {
	Payload  []byte
	Priority int
	Retry    bool
}

// Sender is a scripted Sender implementation recording every call.
type Sender struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned by Connect.
	ConnectErr error

	// SendErr, if non-nil, is returned by Send and SendBinary.
	SendErr error

	// ConnectCalls counts Connect invocations.
	ConnectCalls int

	// Text and Binary record sends by frame kind, in order.
	Text   []SendCall
	Binary []SendCall

	state transport.State
}

// NewConnected returns a Sender already in the Connected state.
func NewConnected() *Sender {
	return &Sender{state: transport.StateConnected}
}

// SetState scripts the reported connection state.
func (s *Sender) SetState(st transport.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the scripted connection state.
func (s *Sender) State() transport.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect records the call; on success the state becomes Connected.
func (s *Sender) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConnectCalls++
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	s.state = transport.StateConnected
	return nil
}

// Send records a text frame send.
func (s *Sender) Send(ctx context.Context, payload []byte, priority int, retry bool) error {
	return s.record(payload, priority, retry, false)
}

// SendBinary records a binary frame send.
func (s *Sender) SendBinary(ctx context.Context, payload []byte, priority int, retry bool) error {
	return s.record(payload, priority, retry, true)
}

func (s *Sender) record(payload []byte, priority int, retry, binary bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	call := SendCall{Payload: cp, Priority: priority, Retry: retry}
	if binary {
		s.Binary = append(s.Binary, call)
	} else {
		s.Text = append(s.Text, call)
	}
	return nil
}

// ConnectCount returns the number of Connect calls so far. Thread-safe.
func (s *Sender) ConnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ConnectCalls
}

// TextCount returns the number of text sends so far. Thread-safe.
func (s *Sender) TextCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Text)
}

// BinaryCount returns the number of binary sends so far. Thread-safe.
func (s *Sender) BinaryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Binary)
}

// TextAt returns the i-th recorded text send. Thread-safe.
func (s *Sender) TextAt(i int) SendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Text[i]
}

// BinaryAt returns the i-th recorded binary send. Thread-safe.
func (s *Sender) BinaryAt(i int) SendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Binary[i]
}

// Ensure Sender implements bridge.Sender at compile time.
var _ bridge.Sender = (*Sender)(nil)
