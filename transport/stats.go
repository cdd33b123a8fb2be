// Package transport - per-peer transport counters, mirroring the teacher's
// transport.Stats (Num/Offset/Size atomics keyed by session) but scoped to
// what this engine actually moves: buffers, not HTTP objects.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"strconv"

	"github.com/ais-hpc/exstack/cmn/atomic"
	"github.com/ais-hpc/exstack/cmn/cos"
	"github.com/ais-hpc/exstack/cmn/debug"
	"github.com/ais-hpc/exstack/cmn/nlog"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats accumulates per-peer counters for buffers and bytes shipped
// through this capability. Safe for concurrent use; every field is an
// atomic word precisely because it is updated from the send/proceed hot
// path and read from an unrelated metrics-scrape goroutine.
type Stats struct {
	BuffersSent atomic.Int64
	BytesSent   atomic.Int64
	BuffersRecv atomic.Int64
	BytesRecv   atomic.Int64
}

func (s *Stats) OnSend(nbytes int64) {
	s.BuffersSent.Inc()
	s.BytesSent.Add(nbytes)
}

func (s *Stats) OnRecv(nbytes int64) {
	s.BuffersRecv.Inc()
	s.BytesRecv.Add(nbytes)
}

// OnSendPayload is OnSend plus a checksum of the outgoing bytes, logged only
// when debug.ON() - a cheap way to catch a torn write during development
// without paying for it in a release build.
func (s *Stats) OnSendPayload(dest int, b []byte) {
	s.OnSend(int64(len(b)))
	if debug.ON() {
		nlog.Infof("send -> peer %d: %d bytes, xxhash %x", dest, len(b), cos.Checksum64(b))
	}
}

// PromCollector adapts Stats to prometheus.Collector so a host process can
// register it once per session and get buffer/byte counters for free.
type PromCollector struct {
	stats    *Stats
	sid      string
	selfPeer int

	buffersSent *prometheus.Desc
	bytesSent   *prometheus.Desc
	buffersRecv *prometheus.Desc
	bytesRecv   *prometheus.Desc
}

func NewPromCollector(sid string, selfPeer int, stats *Stats) *PromCollector {
	constLabels := prometheus.Labels{"session": sid}
	return &PromCollector{
		stats:    stats,
		sid:      sid,
		selfPeer: selfPeer,
		buffersSent: prometheus.NewDesc("exstack_buffers_sent_total",
			"Buffers shipped by this peer.", []string{"peer"}, constLabels),
		bytesSent: prometheus.NewDesc("exstack_bytes_sent_total",
			"Bytes shipped by this peer.", []string{"peer"}, constLabels),
		buffersRecv: prometheus.NewDesc("exstack_buffers_received_total",
			"Buffers received by this peer.", []string{"peer"}, constLabels),
		bytesRecv: prometheus.NewDesc("exstack_bytes_received_total",
			"Bytes received by this peer.", []string{"peer"}, constLabels),
	}
}

func (c *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buffersSent
	ch <- c.bytesSent
	ch <- c.buffersRecv
	ch <- c.bytesRecv
}

func (c *PromCollector) Collect(ch chan<- prometheus.Metric) {
	peer := strconv.Itoa(c.selfPeer)
	ch <- prometheus.MustNewConstMetric(c.buffersSent, prometheus.CounterValue, float64(c.stats.BuffersSent.Load()), peer)
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(c.stats.BytesSent.Load()), peer)
	ch <- prometheus.MustNewConstMetric(c.buffersRecv, prometheus.CounterValue, float64(c.stats.BuffersRecv.Load()), peer)
	ch <- prometheus.MustNewConstMetric(c.bytesRecv, prometheus.CounterValue, float64(c.stats.BytesRecv.Load()), peer)
}
