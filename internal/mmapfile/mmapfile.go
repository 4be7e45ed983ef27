// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmapfile memory-maps byte ranges of an open file descriptor,
// following the same pattern the teacher's datafile.Reader uses to map an
// entire data file read-only: mmap the range, then madvise the kernel about
// expected access, so random point lookups don't thrash the page cache.
package mmapfile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Region is a memory-mapped byte range. It is not safe for concurrent Close
// calls, but concurrent reads of Bytes() are fine since the mapping is
// read-only.
type Region struct {
	data []byte
}

// Map maps length bytes of fd starting at offset, read-only. It returns a
// nil *Region and a non-nil error on failure -- callers treat a failed map
// as a corrupt/missing entry (spec: "mmap failure" is a CorruptEntry, not a
// panic).
func Map(fd int, offset int64, length int) (*Region, error) {
	if length == 0 {
		return &Region{data: []byte{}}, nil
	}
	data, err := unix.Mmap(fd, offset, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap(offset=%d, length=%d): %w", offset, length, err)
	}
	// random-access point lookups dominate; sequential readahead would
	// just evict pages we're about to want again.
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("unix.Madvise: %w", err)
	}
	return &Region{data: data}, nil
}

// Bytes returns the mapped region. Callers must not write to it.
func (r *Region) Bytes() []byte {
	if r == nil {
		return nil
	}
	return r.data
}

// Close unmaps the region. Safe to call on a Region created for a
// zero-length map, in which case it's a no-op.
func (r *Region) Close() error {
	if r == nil || len(r.data) == 0 {
		return nil
	}
	data := r.data
	r.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("unix.Munmap: %w", err)
	}
	return nil
}
