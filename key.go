// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"encoding/hex"
	"fmt"

	"github.com/nblair/netcache/internal/digest"
)

// HashSize is the fixed width, in bytes, of a Key's full hash.
const HashSize = 32

// HashType is a fixed-width cryptographic hash identifying an entry within
// its partition. Its origin (how a request maps to a hash) is outside this
// engine's scope -- see spec.md §1.
type HashType [HashSize]byte

// Key opaquely identifies a cache entry: a partition (a caller-chosen
// coarse shard, materialized as a subdirectory) plus a full hash. shortHash
// is a stable 32-bit projection of hash used only by the contents filter.
type Key struct {
	Partition string
	Hash      HashType
	hashStr   string
	shortHash uint32
}

// NewKey builds a Key from a partition name and a full hash. Partition must
// be non-empty; Keys are typically constructed once by the caller and
// passed by value from then on.
func NewKey(partition string, hash HashType) (Key, error) {
	if partition == "" {
		return Key{}, fmt.Errorf("netcache: key partition must not be empty")
	}
	return Key{
		Partition: partition,
		Hash:      hash,
		hashStr:   hex.EncodeToString(hash[:]),
		shortHash: digest.ShortHash(hash[:]),
	}, nil
}

// StringToHash parses a hex-encoded hash, failing on malformed input.
func StringToHash(s string) (HashType, error) {
	var h HashType
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("netcache: malformed hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("netcache: hash %q has %d bytes, want %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// HashString returns the hex string form of k's hash -- also the file name
// this entry is stored under on disk.
func (k Key) HashString() string {
	return k.hashStr
}

// ShortHash returns the 32-bit projection of k's hash used by the contents
// filter. It carries no cryptographic meaning; only collision resistance
// within a single cache's working set matters.
func (k Key) ShortHash() uint32 {
	return k.shortHash
}

// validate reports ErrInvalidKey if k is missing a partition. It's used
// as a cheap guard at the top of every public Storage method.
func (k Key) validate() error {
	if k.Partition == "" {
		return ErrInvalidKey
	}
	return nil
}

// IsNull reports whether k is the zero Key (no partition set).
func (k Key) IsNull() bool {
	return k.Partition == ""
}

// Equal reports whether k and other identify the same entry: equal
// partition and equal full hash.
func (k Key) Equal(other Key) bool {
	return k.Partition == other.Partition && k.Hash == other.Hash
}

// ToShortHash returns a deterministic 32-bit projection of a full hash.
// Exposed as a free function to mirror Key.stringToHash/Key.toShortHash in
// spec.md §4.1, for callers (like initialize) that only have a parsed
// hash, not a full Key.
func ToShortHash(hash HashType) uint32 {
	return digest.ShortHash(hash[:])
}
