/************************************************************************************
 *
 * wireclient, a Go core for a chat-platform REST + gateway client
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2025 Marouane Souiri
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package wireclient

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the optional prometheus collectors wireclient can report
// through. A nil *Metrics disables all of it; every
// method below is a no-op on a nil receiver.
type Metrics struct {
	BucketWaitSeconds   prometheus.Histogram
	GatewayReconnects   prometheus.Counter
	HeartbeatLatencyMS  prometheus.Gauge
}

// NewMetrics registers wireclient's collectors on reg and returns the
// bundle. Pass nil anywhere a *Metrics is accepted to opt out entirely.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BucketWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wireclient",
			Subsystem: "ratelimit",
			Name:      "bucket_wait_seconds",
			Help:      "Time requests spent blocked on a rate-limit bucket before being sent.",
			Buckets:   prometheus.DefBuckets,
		}),
		GatewayReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wireclient",
			Subsystem: "gateway",
			Name:      "reconnects_total",
			Help:      "Count of gateway reconnect attempts across all shards.",
		}),
		HeartbeatLatencyMS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wireclient",
			Subsystem: "gateway",
			Name:      "heartbeat_latency_ms",
			Help:      "Most recently observed heartbeat round-trip time, in milliseconds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BucketWaitSeconds, m.GatewayReconnects, m.HeartbeatLatencyMS)
	}
	return m
}

// ObserveBucketWait records a rate-limit bucket wait, no-op on a nil Metrics.
func (m *Metrics) ObserveBucketWait(seconds float64) {
	if m == nil {
		return
	}
	m.BucketWaitSeconds.Observe(seconds)
}

// IncGatewayReconnect records one gateway reconnect attempt.
func (m *Metrics) IncGatewayReconnect() {
	if m == nil {
		return
	}
	m.GatewayReconnects.Inc()
}

// SetHeartbeatLatency records the most recent heartbeat RTT in milliseconds.
func (m *Metrics) SetHeartbeatLatency(ms float64) {
	if m == nil {
		return
	}
	m.HeartbeatLatencyMS.Set(ms)
}
