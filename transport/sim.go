// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package transport

import (
	"context"
	"sync"

	"golang.org/x/net/bpf"

	"grimm.is/nlcore/nlerr"
)

// SimSocket is an in-memory Socket with a scriptable kernel on the other
// end. Tests inject inbound datagrams and inspect what was sent; a
// responder function can answer requests the way the kernel would.
type SimSocket struct {
	in *Queue

	mu        sync.Mutex
	sent      [][]byte
	groups    map[uint32]bool
	filter    []bpf.RawInstruction
	responder func(req []byte) [][]byte
	sendErr   error
	port      uint32
	closed    bool
}

// NewSim creates a simulated socket with port id 4242.
func NewSim() *SimSocket {
	return &SimSocket{
		in:     NewQueue(),
		groups: make(map[uint32]bool),
		port:   4242,
	}
}

// Inject queues one inbound datagram as if the kernel had sent it.
func (s *SimSocket) Inject(b []byte) {
	s.in.Enqueue(b)
}

// SetResponder installs the scripted kernel: every sent request is
// passed to fn and its responses are queued inbound.
func (s *SimSocket) SetResponder(fn func(req []byte) [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = fn
}

// FailSends makes every subsequent Send return err.
func (s *SimSocket) FailSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// Sent returns a copy of everything written so far.
func (s *SimSocket) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// Joined reports multicast membership.
func (s *SimSocket) Joined(group uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[group]
}

func (s *SimSocket) Send(ctx context.Context, b []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nlerr.New(nlerr.KindClosed, "socket closed")
	}
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return nlerr.Wrap(err, nlerr.KindIO, "send")
	}
	s.sent = append(s.sent, append([]byte(nil), b...))
	responder := s.responder
	s.mu.Unlock()

	if responder != nil {
		for _, resp := range responder(b) {
			s.in.Enqueue(resp)
		}
	}
	return nil
}

func (s *SimSocket) Receive(ctx context.Context) ([]byte, error) {
	return s.in.Dequeue(ctx)
}

func (s *SimSocket) PortID() uint32 { return s.port }

func (s *SimSocket) JoinGroup(group uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group] = true
	return nil
}

func (s *SimSocket) LeaveGroup(group uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, group)
	return nil
}

func (s *SimSocket) SetBPF(filter []bpf.RawInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter
	return nil
}

func (s *SimSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.in.Close()
	return nil
}
