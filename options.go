// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"io"
	"log/slog"
)

// StorageOption configures a Storage at Open time, following the
// teacher's functional-options convention (see builder.go's
// BuilderOption).
type StorageOption func(*storageConfig)

type storageConfig struct {
	logger              *slog.Logger
	maximumSize         int64
	deletionProbability float64
	maxActiveReads      int64
	maxActiveWrites     int64
	now                 func() int64 // unix millis; overridable for tests
	metrics             *Metrics
}

func defaultStorageConfig() storageConfig {
	return storageConfig{
		logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		maximumSize:         0, // 0 means the cache is disabled until SetMaximumSize is called
		deletionProbability: 0.25,
		maxActiveReads:      5,
		maxActiveWrites:     3,
		now:                 nowUnixMilli,
	}
}

// WithLogger sets the *slog.Logger used for the storage engine's
// diagnostic logging. The default discards everything.
func WithLogger(logger *slog.Logger) StorageOption {
	return func(c *storageConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaximumSize sets the initial byte budget enforced by the shrink
// loop. Zero (the default) disables the cache entirely -- Retrieve always
// misses and Store/Update never touch disk -- until SetMaximumSize is
// called with a positive value.
func WithMaximumSize(bytes int64) StorageOption {
	return func(c *storageConfig) {
		c.maximumSize = bytes
	}
}

// WithDeletionProbability overrides the per-file eviction probability the
// shrink loop uses once over budget. The default, 0.25, matches the
// original implementation.
func WithDeletionProbability(p float64) StorageOption {
	return func(c *storageConfig) {
		if p >= 0 && p <= 1 {
			c.deletionProbability = p
		}
	}
}

// WithMaxActiveReads overrides the default cap of 5 concurrent read
// operations.
func WithMaxActiveReads(n int64) StorageOption {
	return func(c *storageConfig) {
		if n > 0 {
			c.maxActiveReads = n
		}
	}
}

// WithMaxActiveWrites overrides the default cap of 3 concurrent write
// operations.
func WithMaxActiveWrites(n int64) StorageOption {
	return func(c *storageConfig) {
		if n > 0 {
			c.maxActiveWrites = n
		}
	}
}

// WithMetrics attaches a Metrics to the Storage; its counters are updated
// live as Retrieve calls hit or miss and as damaged entries are evicted.
func WithMetrics(m *Metrics) StorageOption {
	return func(c *storageConfig) {
		c.metrics = m
	}
}

// withClock is a test seam letting tests fix the notion of "now" used for
// entry timestamps and shrink-loop randomness seeding. Unexported: it's
// not part of the supported public API.
func withClock(now func() int64) StorageOption {
	return func(c *storageConfig) {
		c.now = now
	}
}
