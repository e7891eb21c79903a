// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package transport

import (
	"context"
	"testing"
	"time"

	"grimm.is/nlcore/nlerr"
)

func TestQueueOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]byte{1})
	q.Enqueue([]byte{2})
	q.Enqueue([]byte{3})

	ctx := context.Background()
	for want := byte(1); want <= 3; want++ {
		b, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if b[0] != want {
			t.Errorf("expected %d, got %d", want, b[0])
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty, has %d", q.Len())
	}
}

func TestQueueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()
	got := make(chan []byte, 1)
	go func() {
		b, err := q.Dequeue(context.Background())
		if err != nil {
			t.Errorf("dequeue: %v", err)
		}
		got <- b
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue([]byte{9})

	select {
	case b := <-got:
		if b[0] != 9 {
			t.Errorf("got %d", b[0])
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up")
	}
}

func TestQueueContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]byte{1})
	q.Close()

	if _, err := q.Dequeue(context.Background()); nlerr.GetKind(err) != nlerr.KindClosed {
		t.Errorf("expected KindClosed, got %v", err)
	}
	// Enqueue after close is a no-op.
	q.Enqueue([]byte{2})
	if q.Len() != 0 {
		t.Errorf("closed queue accepted a datagram")
	}
}

func TestQueueCloseWakesWaiter(t *testing.T) {
	q := NewQueue()
	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if nlerr.GetKind(err) != nlerr.KindClosed {
			t.Errorf("expected KindClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}
