// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package filter implements the cache's contents filter: an in-memory
// approximate membership set over short hashes, adapted from the teacher's
// plain Bitset (bitset/bitset.go, internal/bitset/bitset.go) into a
// counting variant so that Remove is supported without a false negative
// clobbering a different key's bit in the same slot.
package filter

const (
	// counterMax caps each slot so a saturated hot key can't wrap a
	// uint8 counter back to zero on Add.
	counterMax = 255
)

// Filter is a counting Bloom filter keyed by 32-bit short hashes. It is
// owned exclusively by the storage engine's main context (spec.md §5),
// so it does not lock internally -- callers must not share one across
// goroutines without their own synchronization.
type Filter struct {
	counters []uint8
	k        int
}

// New returns a Filter sized for approximately capacityHint entries at a
// false-positive rate around 1%. k (the number of hash functions) is
// derived the standard way: k = round((m/n) * ln2).
func New(capacityHint int) *Filter {
	if capacityHint < 64 {
		capacityHint = 64
	}
	// m = -(n * ln(p)) / (ln2)^2, p = 0.01
	const bitsPerEntry = 9.6 // ~= -ln(0.01)/ln(2)^2
	m := int(float64(capacityHint) * bitsPerEntry)
	if m < 1024 {
		m = 1024
	}
	k := int(float64(m)/float64(capacityHint)*0.6931471805599453 + 0.5)
	if k < 2 {
		k = 2
	}
	if k > 8 {
		k = 8
	}
	return &Filter{
		counters: make([]uint8, m),
		k:        k,
	}
}

// indices derives the k slot positions for shortHash using double hashing
// (Kirsch-Mitzenmacher): index_i = (h1 + i*h2) mod m, avoiding k
// independent hash computations over an already-hashed 32-bit value.
func (f *Filter) indices(shortHash uint32, yield func(idx int)) {
	h1 := shortHash
	h2 := (shortHash>>16 | shortHash<<16) ^ 0x9E3779B9
	m := uint32(len(f.counters))
	for i := 0; i < f.k; i++ {
		idx := (h1 + uint32(i)*h2) % m
		yield(int(idx))
	}
}

// Add records shortHash as present.
func (f *Filter) Add(shortHash uint32) {
	f.indices(shortHash, func(idx int) {
		if f.counters[idx] < counterMax {
			f.counters[idx]++
		}
	})
}

// Remove undoes one Add for shortHash. Removing a key that was never
// added (or already fully removed) is a no-op.
func (f *Filter) Remove(shortHash uint32) {
	f.indices(shortHash, func(idx int) {
		if f.counters[idx] > 0 {
			f.counters[idx]--
		}
	})
}

// MayContain reports whether shortHash could be present. False positives
// are possible; false negatives are not, as long as every live Add has a
// matching counter still above zero.
func (f *Filter) MayContain(shortHash uint32) bool {
	present := true
	f.indices(shortHash, func(idx int) {
		if f.counters[idx] == 0 {
			present = false
		}
	})
	return present
}

// Clear resets the filter to empty.
func (f *Filter) Clear() {
	for i := range f.counters {
		f.counters[i] = 0
	}
}
