// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlcore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"grimm.is/nlcore/nlmsg"
)

func TestStatsCounters(t *testing.T) {
	c, sim := newTestConn(t)
	ctx := testContext(t)

	sim.SetResponder(func(req []byte) [][]byte {
		h, err := nlmsg.DecodeHeader(req)
		if err != nil {
			return nil
		}
		return [][]byte{
			linkReply(t, h.Sequence, nlmsg.FlagMulti, 1, "lo"),
			linkReply(t, 0, 0, 9, "tun0"),
			doneMsg(t, h.Sequence),
		}
	})

	_, err := c.Execute(ctx, linkRequest(), nlmsg.FlagDump)
	require.NoError(t, err)

	s := c.Stats()
	require.Equal(t, uint64(1), s.Sent)
	require.Equal(t, uint64(3), s.Received)
	require.Equal(t, uint64(2), s.Buffered)
	require.Equal(t, uint64(1), s.Broadcast)
	require.NotZero(t, s.BytesSent)
	require.NotZero(t, s.BytesReceived)
}

func TestStatsCollector(t *testing.T) {
	c, _ := newTestConn(t)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewStatsCollector(c, "test")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}
