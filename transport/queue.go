// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package transport

import (
	"context"
	"sync"

	"grimm.is/nlcore/nlerr"
)

// Queue is the ordered pending-datagram queue owned by one Transport.
// It is unbounded by contract; in practice the kernel socket buffer
// limits how much can ever sit in it. The producer is the receive path,
// the consumer is whatever correlator call or listener is currently
// draining the transport.
type Queue struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool

	ready chan struct{}
	done  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends one raw datagram. Datagrams enqueued after Close are
// dropped.
func (q *Queue) Enqueue(b []byte) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, b)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest datagram, blocking until one is
// available, the context is done, or the queue is closed.
func (q *Queue) Dequeue(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			b := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return b, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, nlerr.New(nlerr.KindClosed, "queue closed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Len reports the number of queued datagrams.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards queued datagrams and wakes all waiters with a
// KindClosed error.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	close(q.done)
}
