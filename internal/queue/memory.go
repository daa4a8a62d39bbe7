package queue

import (
	"context"
	"sync"

	"github.com/BradenHooton/posgate/internal/models"
)

// MemoryQueue is a bounded in-process queue used when no brokers are
// configured. Messages are lost on restart.
type MemoryQueue struct {
	ch     chan *models.NotificationMessage
	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{ch: make(chan *models.NotificationMessage, size)}
}

// Publish never blocks the request path
func (q *MemoryQueue) Publish(_ context.Context, msg *models.NotificationMessage) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume delivers messages until ctx is done or the queue is closed and
// drained
func (q *MemoryQueue) Consume(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-q.ch:
			if !ok {
				return nil
			}
			_ = handle(ctx, msg)
		}
	}
}

// Len reports the number of buffered messages
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
