// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package digest computes the 32-bit checksums used throughout the cache
// file format: header checksums, body checksums, and the metadata block's
// trailing checksum. It also derives the short hash used by the contents
// filter from a key's full hash.
package digest

import "github.com/dgryski/go-farm"

// Sum32 returns a 32-bit digest of b. It is not cryptographic; it only
// needs to make accidental collisions within a single cache's working set
// unlikely.
func Sum32(b []byte) uint32 {
	return farm.Hash32(b)
}

// Spans returns the same digest Sum32 would over the concatenation of
// spans, without requiring the caller to have already joined them into one
// slice. farm's hash isn't incremental, so this still copies internally
// when there's more than one non-empty span -- but it saves the caller
// from doing that copy itself when all it wants is the digest, and it
// guarantees the result matches Sum32 on the reassembled bytes regardless
// of how a Data happened to be split.
func Spans(spans [][]byte) uint32 {
	total := 0
	nonEmpty := 0
	for _, s := range spans {
		total += len(s)
		if len(s) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty <= 1 {
		for _, s := range spans {
			if len(s) > 0 {
				return farm.Hash32(s)
			}
		}
		return farm.Hash32(nil)
	}

	buf := make([]byte, 0, total)
	for _, s := range spans {
		buf = append(buf, s...)
	}
	return farm.Hash32(buf)
}

// ShortHash projects a full hash down to a 32-bit value stable enough to
// use as a contents-filter membership key. Two keys with different full
// hashes may collide here; that's fine, it only produces filter false
// positives, never false negatives.
func ShortHash(fullHash []byte) uint32 {
	return farm.Hash32(fullHash)
}
