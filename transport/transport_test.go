// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"grimm.is/nlcore/internal/testutil"
	"grimm.is/nlcore/nlerr"
)

func TestReceiveDirectPath(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	defer tr.Close()

	sim.Inject([]byte{1, 2, 3})
	b, err := tr.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)
}

func TestReceiveReaderPath(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	defer tr.Close()

	tr.StartReader()
	sim.Inject([]byte{4, 5})

	// The datagram arrives via the background reader and the queue; the
	// caller sees exactly what the direct path would have produced.
	b, err := tr.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, b)
}

func TestEnqueueBeatsSocket(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	defer tr.Close()

	// Locally injected datagrams drain before the socket is touched.
	tr.Enqueue([]byte{7})
	sim.Inject([]byte{8})

	b, err := tr.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{7}, b)

	b, err = tr.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{8}, b)
}

func TestSendAfterClose(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	require.NoError(t, tr.Close())

	err := tr.Send(context.Background(), []byte{1})
	require.Equal(t, nlerr.KindClosed, nlerr.GetKind(err))
}

func TestReceiveAfterClose(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	tr.StartReader()
	require.NoError(t, tr.Close())

	_, err := tr.Receive(context.Background())
	require.Equal(t, nlerr.KindClosed, nlerr.GetKind(err))
}

func TestReaderErrorParked(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	defer tr.Close()

	tr.StartReader()
	// Closing the socket out from under the reader kills it; the next
	// Receive reports the failure instead of hanging.
	require.NoError(t, sim.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := tr.Receive(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimResponder(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	defer tr.Close()

	sim.SetResponder(func(req []byte) [][]byte {
		return [][]byte{append([]byte{0xab}, req...)}
	})

	require.NoError(t, tr.Send(context.Background(), []byte{1, 2}))
	b, err := tr.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0xab, 1, 2}, b)
	require.Len(t, sim.Sent(), 1)
}

func TestSimSendFailure(t *testing.T) {
	sim := NewSim()
	tr := New(sim)
	defer tr.Close()

	sim.FailSends(unix.ENOBUFS)
	err := tr.Send(context.Background(), []byte{1})
	require.Equal(t, nlerr.KindIO, nlerr.GetKind(err))
}

func TestDialReal(t *testing.T) {
	testutil.RequireNetlink(t)

	// NETLINK_ROUTE is always present.
	sock, err := Dial(0, &Config{})
	require.NoError(t, err)
	defer sock.Close()
	require.NotZero(t, sock.PortID())
}
