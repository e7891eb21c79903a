// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package transport owns the kernel socket and the pending-datagram
// queue. It moves raw bytes and never interprets them; classification
// belongs to the marshal, correlation to the Conn above it.
package transport

import (
	"context"
	"sync"

	"golang.org/x/net/bpf"

	"grimm.is/nlcore/nlerr"
)

// DefaultReceiveSize is the initial receive buffer size.
const DefaultReceiveSize = 16384

// Config carries socket construction parameters. Multicast group
// subscriptions are part of the bind and are not mutated afterwards;
// late joins go through Socket.JoinGroup before traffic starts.
type Config struct {
	// Groups is the multicast group bitmask passed to bind.
	Groups uint32
	// ReadBuffer and WriteBuffer size the kernel socket buffers when
	// nonzero.
	ReadBuffer  int
	WriteBuffer int
	// ReceiveSize is the initial userspace receive buffer size; it grows
	// as needed for oversized datagrams. Zero means DefaultReceiveSize.
	ReceiveSize int
}

func (c *Config) receiveSize() int {
	if c == nil || c.ReceiveSize <= 0 {
		return DefaultReceiveSize
	}
	return c.ReceiveSize
}

// Socket is one kernel endpoint. Exactly one execution context owns a
// Socket; there is no cross-context sharing.
type Socket interface {
	// Send writes one encoded message. Transient errno values are
	// retried in place; anything else is terminal for the socket.
	Send(ctx context.Context, b []byte) error
	// Receive reads one raw datagram, which may contain several
	// concatenated messages.
	Receive(ctx context.Context) ([]byte, error)
	// PortID is the kernel-assigned local address, stamped into request
	// headers.
	PortID() uint32
	JoinGroup(group uint32) error
	LeaveGroup(group uint32) error
	// SetBPF attaches an assembled socket filter.
	SetBPF(filter []bpf.RawInstruction) error
	Close() error
}

// Transport pairs a Socket with its Queue. Without the background
// reader, Receive reads the socket directly; with it, Receive drains the
// queue. Callers cannot observe which path is active.
type Transport struct {
	sock  Socket
	queue *Queue

	mu      sync.Mutex
	reader  bool
	readErr error
	closed  bool
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// New wraps a Socket with a fresh queue.
func New(sock Socket) *Transport {
	return &Transport{
		sock:   sock,
		queue:  NewQueue(),
		stopCh: make(chan struct{}),
	}
}

// Socket exposes the underlying socket for group management and BPF.
func (t *Transport) Socket() Socket { return t.sock }

// Queue exposes the pending-datagram queue. The proxy path injects
// locally-produced responses through it.
func (t *Transport) Queue() *Queue { return t.queue }

// Send writes one encoded message to the socket.
func (t *Transport) Send(ctx context.Context, b []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nlerr.New(nlerr.KindClosed, "transport closed")
	}
	return t.sock.Send(ctx, b)
}

// Enqueue appends a raw datagram to the queue, exactly as if it had
// arrived from the kernel.
func (t *Transport) Enqueue(b []byte) {
	t.queue.Enqueue(b)
}

// Receive yields the next raw datagram. The queue is always drained
// first so proxied and re-buffered datagrams keep their order; when it
// is empty and no background reader runs, the socket is read directly.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	for {
		t.mu.Lock()
		reader, readErr := t.reader, t.readErr
		t.mu.Unlock()

		if reader || t.queue.Len() > 0 {
			b, err := t.queue.Dequeue(ctx)
			if err != nil {
				return nil, err
			}
			if len(b) == 0 {
				// Reader shutdown sentinel; re-evaluate.
				continue
			}
			return b, nil
		}
		if readErr != nil {
			return nil, readErr
		}
		return t.sock.Receive(ctx)
	}
}

// StartReader launches the background receive goroutine. It drains the
// kernel buffer into the queue as fast as datagrams arrive, which is the
// only way to survive broadcast storms that would otherwise overrun the
// socket. The first receive failure parks its error for the next
// Receive call and stops the reader.
func (t *Transport) StartReader() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reader || t.closed {
		return
	}
	t.reader = true
	t.wg.Add(1)
	go t.readLoop()
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-t.stopCh
		cancel()
	}()

	for {
		b, err := t.sock.Receive(ctx)
		if err != nil {
			t.mu.Lock()
			t.reader = false
			if !t.closed {
				t.readErr = err
			}
			t.mu.Unlock()
			// Wake any Dequeue waiter so the error surfaces.
			t.queue.Enqueue([]byte{})
			return
		}
		t.queue.Enqueue(b)
	}
}

// Close stops the reader, closes the queue and the socket. All pending
// Receive calls fail with a KindClosed error.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stopCh)
	err := t.sock.Close()
	t.queue.Close()
	t.wg.Wait()
	return err
}
