// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nlcore implements the client core of netlink-style kernel
// protocols: an asynchronous request/response correlator over one
// socket, matching outbound requests to responses that arrive out of
// order, interleaved with broadcast traffic and split across datagrams.
//
// The core carries no protocol semantics. Families describe their
// message formats with nlmsg schemas, register them on a marshal, and
// drive requests through a Conn; what a route or a link means is their
// business entirely.
package nlcore

import (
	"context"
	"errors"
	"sync/atomic"

	"grimm.is/nlcore/marshal"
	"grimm.is/nlcore/nlerr"
	"grimm.is/nlcore/nlmsg"
	"grimm.is/nlcore/transport"
)

// ErrEndOfStream reports the normal end of a response sequence.
var ErrEndOfStream = errors.New("nlcore: end of response stream")

// Terminator decides whether a message ends a multi-part response. The
// kernel's termination convention is not uniform across families, so
// the predicate is pluggable per Conn and per request; the default
// recognizes NLMSG_DONE. A message without the multi-part flag always
// completes its request, terminator aside.
type Terminator func(*nlmsg.Message) bool

// DefaultTerminator ends a response on NLMSG_DONE.
func DefaultTerminator(m *nlmsg.Message) bool {
	return m.Header.Type == nlmsg.TypeDone
}

// Proxy services requests locally, without a kernel round-trip. A proxy
// that claims a request must produce wire-encoded responses; they enter
// the normal receive path, so callers cannot tell proxied traffic from
// kernel traffic.
type Proxy interface {
	Handle(req []byte) (handled bool, responses [][]byte, err error)
}

// ProxyFunc adapts a function to the Proxy interface.
type ProxyFunc func(req []byte) (bool, [][]byte, error)

func (f ProxyFunc) Handle(req []byte) (bool, [][]byte, error) { return f(req) }

type options struct {
	cfg        transport.Config
	mar        *marshal.Marshal
	terminator Terminator
	proxy      Proxy
	reader     bool
}

// Option configures a Conn at construction time.
type Option func(*options)

// WithGroups subscribes the socket to a multicast group bitmask at bind
// time.
func WithGroups(groups uint32) Option {
	return func(o *options) { o.cfg.Groups = groups }
}

// WithReadBuffer sizes the kernel receive buffer.
func WithReadBuffer(bytes int) Option {
	return func(o *options) { o.cfg.ReadBuffer = bytes }
}

// WithWriteBuffer sizes the kernel send buffer.
func WithWriteBuffer(bytes int) Option {
	return func(o *options) { o.cfg.WriteBuffer = bytes }
}

// WithReceiveSize sets the initial userspace receive buffer size.
func WithReceiveSize(bytes int) Option {
	return func(o *options) { o.cfg.ReceiveSize = bytes }
}

// WithMarshal installs a pre-configured marshal instead of an empty one.
func WithMarshal(m *marshal.Marshal) Option {
	return func(o *options) { o.mar = m }
}

// WithTerminator replaces the Conn-wide termination predicate.
func WithTerminator(t Terminator) Option {
	return func(o *options) { o.terminator = t }
}

// WithProxy registers a local request proxy.
func WithProxy(p Proxy) Option {
	return func(o *options) { o.proxy = p }
}

// WithBackgroundReader starts the transport's receive goroutine, which
// drains the kernel buffer into the queue ahead of consumption. Needed
// when heavy broadcast traffic may arrive while no request is polling.
func WithBackgroundReader() Option {
	return func(o *options) { o.reader = true }
}

// Conn is one execution context's connection: a socket, its queue, a
// marshal, the sequence counter and the pending-request table. A Conn is
// owned by one goroutine; contexts needing independent netlink state
// open their own Conn rather than sharing this one.
type Conn struct {
	tr         *transport.Transport
	mar        *marshal.Marshal
	terminator Terminator
	proxy      Proxy

	seq       uint32
	pending   map[uint32]*Request
	broadcast []*nlmsg.Message
	closed    bool

	stats stats
}

type stats struct {
	sent          atomic.Uint64
	received      atomic.Uint64
	buffered      atomic.Uint64
	broadcast     atomic.Uint64
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// Dial opens a kernel socket for the protocol family and wraps it in a
// Conn.
func Dial(family int, opts ...Option) (*Conn, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	sock, err := transport.Dial(family, &o.cfg)
	if err != nil {
		return nil, err
	}
	return newConn(sock, o), nil
}

// New wraps an existing Socket, typically a transport.SimSocket in
// tests.
func New(sock transport.Socket, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newConn(sock, o)
}

func defaultOptions() options {
	return options{
		mar:        marshal.New(),
		terminator: DefaultTerminator,
	}
}

func newConn(sock transport.Socket, o options) *Conn {
	c := &Conn{
		tr:         transport.New(sock),
		mar:        o.mar,
		terminator: o.terminator,
		proxy:      o.proxy,
		pending:    make(map[uint32]*Request),
	}
	if o.reader {
		c.tr.StartReader()
	}
	return c
}

// Marshal returns the Conn's dispatch table for schema registration.
func (c *Conn) Marshal() *marshal.Marshal { return c.mar }

// Socket exposes the underlying socket for group membership and BPF
// filters.
func (c *Conn) Socket() transport.Socket { return c.tr.Socket() }

// Close tears down the socket and queue and invalidates every pending
// request handle.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for seq, r := range c.pending {
		r.complete(nlerr.New(nlerr.KindClosed, "connection closed"))
		delete(c.pending, seq)
	}
	c.broadcast = nil
	return c.tr.Close()
}

// nextSequence allocates the next unused non-zero sequence number. The
// counter wraps and skips values still pending; zero stays reserved for
// broadcast traffic.
func (c *Conn) nextSequence() uint32 {
	for {
		c.seq++
		if c.seq == 0 {
			c.seq = 1
		}
		if _, busy := c.pending[c.seq]; !busy {
			return c.seq
		}
	}
}

// SubmitOption configures one request.
type SubmitOption func(*Request)

// WithDecoder overrides datagram decoding for this request only. The
// function may return a nil message to skip a datagram after a cheap
// predicate, avoiding a full attribute decode on large dumps. It sees
// every non-error datagram of the sequence, NLMSG_DONE included, so it
// must pass control messages through for termination to work.
func WithDecoder(fn marshal.DecodeFunc) SubmitOption {
	return func(r *Request) { r.decoder = fn }
}

// WithRequestTerminator overrides the termination predicate for this
// request only.
func WithRequestTerminator(t Terminator) SubmitOption {
	return func(r *Request) { r.terminator = t }
}

// Submit encodes and sends one request, allocating its sequence number
// and stamping the header. The returned handle yields the response
// sequence via Next.
func (c *Conn) Submit(ctx context.Context, m *nlmsg.Message, flags uint16, opts ...SubmitOption) (*Request, error) {
	if c.closed {
		return nil, nlerr.New(nlerr.KindClosed, "connection closed")
	}

	r := &Request{
		conn:       c,
		terminator: c.terminator,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.seq = c.nextSequence()
	m.Header.Sequence = r.seq
	m.Header.Flags = flags | nlmsg.FlagRequest
	m.Header.PortID = c.tr.Socket().PortID()

	b, err := m.Encode()
	if err != nil {
		return nil, err
	}

	if r.decoder != nil {
		c.mar.SetSequenceParser(r.seq, r.decoder)
	}
	c.pending[r.seq] = r

	if c.proxy != nil {
		handled, responses, perr := c.proxy.Handle(b)
		if perr != nil {
			r.Cancel()
			return nil, perr
		}
		if handled {
			for _, resp := range responses {
				c.tr.Enqueue(resp)
			}
			c.stats.sent.Add(1)
			c.stats.bytesSent.Add(uint64(len(b)))
			return r, nil
		}
	}

	if err := c.tr.Send(ctx, b); err != nil {
		r.Cancel()
		return nil, err
	}
	c.stats.sent.Add(1)
	c.stats.bytesSent.Add(uint64(len(b)))
	return r, nil
}

// pump performs one receive step: read a datagram, classify every
// message in it, and file each one where its owner will find it. No
// datagram is dropped, with one exception inherited from the protocol:
// an error message for a sequence nobody waits on is an orphan and is
// discarded.
func (c *Conn) pump(ctx context.Context) error {
	b, err := c.tr.Receive(ctx)
	if err != nil {
		return err
	}
	c.stats.received.Add(1)
	c.stats.bytesReceived.Add(uint64(len(b)))

	msgs, perr := c.mar.Parse(b)
	for _, m := range msgs {
		c.route(m)
	}
	return perr
}

func (c *Conn) route(m *nlmsg.Message) {
	seq := m.Header.Sequence
	if r, ok := c.pending[seq]; ok && seq != 0 {
		r.buffered = append(r.buffered, m)
		c.stats.buffered.Add(1)
		return
	}
	if seq != 0 && m.Header.Type == nlmsg.TypeError {
		// Orphaned error for a completed or cancelled request.
		return
	}
	c.broadcast = append(c.broadcast, m)
	c.stats.broadcast.Add(1)
}

// Listen yields the next unsolicited message: broadcast traffic and
// anything buffered for no pending request. When nothing is buffered it
// drives the receive path itself.
func (c *Conn) Listen(ctx context.Context) (*nlmsg.Message, error) {
	for {
		if c.closed {
			return nil, nlerr.New(nlerr.KindClosed, "connection closed")
		}
		if len(c.broadcast) > 0 {
			m := c.broadcast[0]
			c.broadcast = c.broadcast[1:]
			return m, nil
		}
		if err := c.pump(ctx); err != nil {
			return nil, err
		}
	}
}

// Request is the handle of one in-flight request, owned by the Conn
// until the terminal message is observed or the caller cancels.
type Request struct {
	conn       *Conn
	seq        uint32
	terminator Terminator
	decoder    marshal.DecodeFunc

	buffered []*nlmsg.Message
	done     bool
	err      error
}

// Sequence returns the request's correlation identifier.
func (r *Request) Sequence() uint32 { return r.seq }

// Next yields the next response message in kernel delivery order. The
// sequence ends with ErrEndOfStream; a kernel-reported failure ends it
// with a protocol error instead. Messages for other requests observed
// along the way are buffered for their owners, never dropped.
func (r *Request) Next(ctx context.Context) (*nlmsg.Message, error) {
	for {
		if r.done {
			if r.err != nil {
				return nil, r.err
			}
			return nil, ErrEndOfStream
		}
		if len(r.buffered) > 0 {
			m := r.buffered[0]
			r.buffered = r.buffered[1:]

			if m.Err != nil {
				r.complete(m.Err)
				r.release()
				return nil, m.Err
			}
			if r.terminator != nil && r.terminator(m) {
				r.complete(nil)
				r.release()
				continue
			}
			if m.Header.Type == nlmsg.TypeError {
				// Ack: terminal, nothing to yield.
				r.complete(nil)
				r.release()
				continue
			}
			if !m.Multi() {
				r.complete(nil)
				r.release()
			}
			return m, nil
		}
		if err := r.conn.pump(ctx); err != nil {
			return nil, err
		}
	}
}

// complete marks the request finished without releasing buffered data.
func (r *Request) complete(err error) {
	r.done = true
	r.err = err
}

// release reclaims the sequence number and the per-request parser.
// Errors arriving for the sequence afterwards are orphans and get
// dropped by the router.
func (r *Request) release() {
	delete(r.conn.pending, r.seq)
	if r.decoder != nil {
		r.conn.mar.ClearSequenceParser(r.seq)
	}
}

// Cancel abandons the request: the sequence number is reclaimed and
// datagrams buffered for it are discarded. Safe to call at any point,
// including after completion.
func (r *Request) Cancel() {
	if !r.done {
		r.complete(nlerr.New(nlerr.KindClosed, "request cancelled"))
	}
	r.buffered = nil
	r.release()
}
