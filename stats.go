// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlcore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a snapshot of a Conn's traffic counters.
type Stats struct {
	// Sent and Received count datagrams, not messages.
	Sent     uint64
	Received uint64

	// Buffered counts messages filed for a pending request; Broadcast
	// counts messages routed to the listener path.
	Buffered  uint64
	Broadcast uint64

	BytesSent     uint64
	BytesReceived uint64

	// QueueDepth is the number of datagrams waiting in the receive
	// queue right now.
	QueueDepth int
}

// Stats returns a snapshot of the Conn's counters.
func (c *Conn) Stats() Stats {
	return Stats{
		Sent:          c.stats.sent.Load(),
		Received:      c.stats.received.Load(),
		Buffered:      c.stats.buffered.Load(),
		Broadcast:     c.stats.broadcast.Load(),
		BytesSent:     c.stats.bytesSent.Load(),
		BytesReceived: c.stats.bytesReceived.Load(),
		QueueDepth:    c.tr.Queue().Len(),
	}
}

// StatsCollector exposes a Conn's counters as Prometheus metrics. The
// conn label distinguishes multiple connections in one registry.
type StatsCollector struct {
	conn *Conn

	sent     *prometheus.Desc
	received *prometheus.Desc
	buffered *prometheus.Desc
	bcast    *prometheus.Desc
	sentB    *prometheus.Desc
	recvB    *prometheus.Desc
	depth    *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector builds a collector over the Conn.
func NewStatsCollector(conn *Conn, name string) *StatsCollector {
	labels := prometheus.Labels{"conn": name}
	return &StatsCollector{
		conn: conn,
		sent: prometheus.NewDesc("nlcore_datagrams_sent_total",
			"Datagrams written to the socket.", nil, labels),
		received: prometheus.NewDesc("nlcore_datagrams_received_total",
			"Datagrams read from the socket or queue.", nil, labels),
		buffered: prometheus.NewDesc("nlcore_messages_correlated_total",
			"Messages filed for a pending request.", nil, labels),
		bcast: prometheus.NewDesc("nlcore_messages_broadcast_total",
			"Messages routed to the listener path.", nil, labels),
		sentB: prometheus.NewDesc("nlcore_sent_bytes_total",
			"Bytes written to the socket.", nil, labels),
		recvB: prometheus.NewDesc("nlcore_received_bytes_total",
			"Bytes read from the socket or queue.", nil, labels),
		depth: prometheus.NewDesc("nlcore_queue_depth",
			"Datagrams waiting in the receive queue.", nil, labels),
	}
}

func (sc *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.sent
	ch <- sc.received
	ch <- sc.buffered
	ch <- sc.bcast
	ch <- sc.sentB
	ch <- sc.recvB
	ch <- sc.depth
}

func (sc *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := sc.conn.Stats()
	ch <- prometheus.MustNewConstMetric(sc.sent, prometheus.CounterValue, float64(s.Sent))
	ch <- prometheus.MustNewConstMetric(sc.received, prometheus.CounterValue, float64(s.Received))
	ch <- prometheus.MustNewConstMetric(sc.buffered, prometheus.CounterValue, float64(s.Buffered))
	ch <- prometheus.MustNewConstMetric(sc.bcast, prometheus.CounterValue, float64(s.Broadcast))
	ch <- prometheus.MustNewConstMetric(sc.sentB, prometheus.CounterValue, float64(s.BytesSent))
	ch <- prometheus.MustNewConstMetric(sc.recvB, prometheus.CounterValue, float64(s.BytesReceived))
	ch <- prometheus.MustNewConstMetric(sc.depth, prometheus.GaugeValue, float64(s.QueueDepth))
}
