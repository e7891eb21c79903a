// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package transport

import (
	"context"
	"os"

	"github.com/mdlayher/socket"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"grimm.is/nlcore/nlerr"
)

// netlinkSocket is the real kernel endpoint: AF_NETLINK/SOCK_RAW wired
// through the runtime network poller, so blocking reads park the
// goroutine instead of a thread and EINTR/EAGAIN never reach us.
type netlinkSocket struct {
	conn    *socket.Conn
	port    uint32
	rcvSize int
}

// Dial opens a netlink socket for the given protocol family and binds it
// with the configured multicast groups.
func Dial(family int, cfg *Config) (Socket, error) {
	conn, err := socket.Socket(unix.AF_NETLINK, unix.SOCK_RAW, family, "netlink", nil)
	if err != nil {
		return nil, nlerr.Wrap(err, nlerr.KindIO, "open netlink socket")
	}

	s := &netlinkSocket{
		conn:    conn,
		rcvSize: cfg.receiveSize(),
	}
	if cfg != nil {
		if cfg.ReadBuffer > 0 {
			if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
				_ = conn.Close()
				return nil, nlerr.Wrap(err, nlerr.KindIO, "set read buffer")
			}
		}
		if cfg.WriteBuffer > 0 {
			if err := conn.SetWriteBuffer(cfg.WriteBuffer); err != nil {
				_ = conn.Close()
				return nil, nlerr.Wrap(err, nlerr.KindIO, "set write buffer")
			}
		}
	}

	var groups uint32
	if cfg != nil {
		groups = cfg.Groups
	}
	if err := conn.Bind(&unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: groups}); err != nil {
		_ = conn.Close()
		return nil, nlerr.Wrap(err, nlerr.KindIO, "bind netlink socket")
	}

	// The kernel assigns the local port id at bind time.
	sa, err := conn.Getsockname()
	if err != nil {
		_ = conn.Close()
		return nil, nlerr.Wrap(err, nlerr.KindIO, "getsockname")
	}
	if nl, ok := sa.(*unix.SockaddrNetlink); ok {
		s.port = nl.Pid
	}
	return s, nil
}

func (s *netlinkSocket) Send(ctx context.Context, b []byte) error {
	// Requests always address the kernel, port 0.
	err := s.conn.Sendto(ctx, b, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
	if err != nil {
		return classify(err, "send")
	}
	return nil
}

func (s *netlinkSocket) Receive(ctx context.Context) ([]byte, error) {
	b := make([]byte, s.rcvSize)
	for {
		// Peek with MSG_TRUNC to learn the real datagram size before
		// consuming it; multi-part dumps routinely exceed any fixed
		// buffer.
		n, _, err := s.conn.Recvfrom(ctx, b, unix.MSG_PEEK|unix.MSG_TRUNC)
		if err != nil {
			return nil, classify(err, "receive")
		}
		if n <= len(b) {
			break
		}
		b = make([]byte, n)
	}

	n, _, err := s.conn.Recvfrom(ctx, b, 0)
	if err != nil {
		return nil, classify(err, "receive")
	}
	return b[:n], nil
}

func (s *netlinkSocket) PortID() uint32 { return s.port }

func (s *netlinkSocket) JoinGroup(group uint32) error {
	return s.conn.SetsockoptInt(unix.SOL_NETLINK, unix.NETLINK_ADD_MEMBERSHIP, int(group))
}

func (s *netlinkSocket) LeaveGroup(group uint32) error {
	return s.conn.SetsockoptInt(unix.SOL_NETLINK, unix.NETLINK_DROP_MEMBERSHIP, int(group))
}

func (s *netlinkSocket) SetBPF(filter []bpf.RawInstruction) error {
	return s.conn.SetBPF(filter)
}

func (s *netlinkSocket) Close() error {
	return s.conn.Close()
}

// classify maps socket errors into the taxonomy. Transient errno values
// never escape the poller, so everything that reaches here is terminal
// for this socket.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*os.SyscallError); ok {
		err = pe.Err
	}
	return nlerr.Wrap(err, nlerr.KindIO, op)
}
