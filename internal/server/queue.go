package server

import (
	"context"
	"errors"
	"sync"

	"go.aimuz.me/comictl/internal/app"
)

// DefaultQueueSize bounds undelivered outbound messages.
const DefaultQueueSize = 256

// ErrQueueFull is returned by Send when the page is not draining events.
var ErrQueueFull = errors.New("event queue full")

// Queue buffers outbound messages until the page polls for them.
// New messages are dropped while the queue is full.
type Queue struct {
	mu    sync.Mutex
	msgs  []app.Message
	size  int
	ready chan struct{}
}

var _ app.Sender = (*Queue)(nil)

// NewQueue creates a Queue holding at most size messages.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{size: size, ready: make(chan struct{}, 1)}
}

// Send appends msg.
func (q *Queue) Send(_ context.Context, msg app.Message) error {
	q.mu.Lock()
	if len(q.msgs) >= q.size {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Drain removes and returns every queued message. It never returns nil.
func (q *Queue) Drain() []app.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.msgs
	q.msgs = nil
	if out == nil {
		out = []app.Message{}
	}
	return out
}

// Wait blocks until a message is queued or ctx is done.
func (q *Queue) Wait(ctx context.Context) {
	if q.Len() > 0 {
		return
	}
	select {
	case <-q.ready:
	case <-ctx.Done():
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}
