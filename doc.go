// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package netcache is a persistent, content-addressed cache for opaque
// header/body pairs (an HTTP response cache being the motivating case).
// Entries are stored one file per key under a base directory, memory-mapped
// on read so a large body never needs a full copy into the process, and
// bounded by an approximate size budget enforced with random eviction
// rather than exact LRU bookkeeping.
//
// A Storage is safe for concurrent use. Retrieve, Store, and Update block
// the calling goroutine until their result is known (or ctx is done), but
// internally at most a handful of read and write operations perform disk
// I/O at any one time; everything else queues.
package netcache
