// Package queue implements the outbound message buffer: a bounded,
// priority-ordered queue of payloads awaiting transmission.
//
// Ordering is ascending by priority with FIFO among equal priorities.
// Overflow evicts from the tail, so the lowest-priority (highest numeric)
// entries are dropped first and urgent traffic survives congestion.
package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound payload waiting for the connection to come up.
type Message struct {
	// ID uniquely identifies the message across its queue lifetime,
	// including requeues after a failed send.
	ID uuid.UUID

	// Payload is the encoded frame to hand to the transport unchanged.
	Payload []byte

	// Binary selects a binary transport frame instead of a text frame.
	Binary bool

	// Priority orders transmission; lower values are more urgent.
	Priority int

	// Retry marks the message for requeueing when a send fails.
	Retry bool

	EnqueuedAt time.Time
}

// Queue is a bounded priority buffer. All methods are safe for concurrent
// use.
type Queue struct {
	mu    sync.Mutex
	items []Message
	max   int
}

// DefaultMaxSize bounds a queue constructed with New(0).
const DefaultMaxSize = 1000

// New creates a queue holding at most max messages. max <= 0 selects
// DefaultMaxSize.
func New(max int) *Queue {
	if max <= 0 {
		max = DefaultMaxSize
	}
	return &Queue{max: max}
}

// Enqueue inserts a payload in priority order and returns the created
// message. When the queue would exceed its maximum, the lowest-priority
// tail entries are evicted and returned so the caller can account for the
// loss.
func (q *Queue) Enqueue(payload []byte, binary bool, priority int, retry bool) (Message, []Message) {
	msg := Message{
		ID:         uuid.New(),
		Payload:    payload,
		Binary:     binary,
		Priority:   priority,
		Retry:      retry,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Insert after every entry of the same priority to keep FIFO order
	// within a priority class.
	i := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Priority > priority
	})
	q.items = append(q.items, Message{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = msg

	var evicted []Message
	for len(q.items) > q.max {
		last := len(q.items) - 1
		evicted = append(evicted, q.items[last])
		q.items[last] = Message{}
		q.items = q.items[:last]
	}
	return msg, evicted
}

// Requeue reinserts a previously dequeued message at the very front,
// bypassing the priority sort. Reserved for retry-after-failure so a
// retried message is never starved by newer urgent traffic. The front slot
// when the queue is full goes to the requeued message; the tail is evicted
// instead.
func (q *Queue) Requeue(msg Message) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append([]Message{msg}, q.items...)

	var evicted []Message
	for len(q.items) > q.max {
		last := len(q.items) - 1
		evicted = append(evicted, q.items[last])
		q.items = q.items[:last]
	}
	return evicted
}

// Drain removes and returns up to n messages from the front of the queue.
func (q *Queue) Drain(n int) []Message {
	if n <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	if n == 0 {
		return nil
	}
	out := make([]Message, n)
	copy(out, q.items[:n])
	rest := copy(q.items, q.items[n:])
	for i := rest; i < len(q.items); i++ {
		q.items[i] = Message{}
	}
	q.items = q.items[:rest]
	return out
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds no messages.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}
