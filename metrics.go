// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a set of Prometheus collectors tracking one Storage's
// runtime state. Register it with a prometheus.Registerer and call
// Observe periodically (or wire it in as a prometheus.Collector via
// Describe/Collect on Storage itself, once more than one Storage needs
// distinguishing labels).
type Metrics struct {
	ApproximateSize       prometheus.Gauge
	ActiveReadOperations  prometheus.Gauge
	ActiveWriteOperations prometheus.Gauge
	ShrinkInProgress      prometheus.Gauge
	Hits                  prometheus.Counter
	Misses                prometheus.Counter
	CorruptionEvictions   prometheus.Counter
}

// NewMetrics constructs a Metrics with the given namespace prefixing every
// metric name (e.g. "netcache_approximate_size_bytes").
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ApproximateSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "approximate_size_bytes",
			Help:      "Estimated total size of all cached entries on disk.",
		}),
		ActiveReadOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_read_operations",
			Help:      "Number of read operations currently performing disk I/O.",
		}),
		ActiveWriteOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_write_operations",
			Help:      "Number of write operations currently performing disk I/O.",
		}),
		ShrinkInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shrink_in_progress",
			Help:      "1 if a background eviction pass is currently running, else 0.",
		}),
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Number of Retrieve calls that returned a live entry.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Number of Retrieve calls that found no live entry.",
		}),
		CorruptionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corruption_evictions_total",
			Help:      "Number of entries removed after failing to decode or checksum.",
		}),
	}
}

// Register adds every collector in m to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.ApproximateSize,
		m.ActiveReadOperations,
		m.ActiveWriteOperations,
		m.ShrinkInProgress,
		m.Hits,
		m.Misses,
		m.CorruptionEvictions,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe samples s's current state into m's gauges. Call this from a
// periodic ticker; the counters (Hits, Misses, CorruptionEvictions) are
// updated live by Storage itself via WithMetrics, not here.
func (m *Metrics) Observe(s *Storage) {
	s.mu.Lock()
	size := s.approximateSize
	active := len(s.activeReads)
	activeW := len(s.activeWrites)
	shrinking := s.shrinkInProgress
	s.mu.Unlock()

	m.ApproximateSize.Set(float64(size))
	m.ActiveReadOperations.Set(float64(active))
	m.ActiveWriteOperations.Set(float64(activeW))
	if shrinking {
		m.ShrinkInProgress.Set(1)
	} else {
		m.ShrinkInProgress.Set(0)
	}
}
