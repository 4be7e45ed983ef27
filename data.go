// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"runtime"

	"github.com/nblair/netcache/internal/digest"
	"github.com/nblair/netcache/internal/mmapfile"
)

// mmapHandle keeps an mmap.Region alive for as long as any Data span still
// points into it. Multiple Data values (and their subranges) can share the
// same handle; the region is only unmapped once every Data referencing it
// has been collected, via the finalizer below. This is the Go equivalent of
// the reference-counted mmap wrapper called for in the design notes -- Go's
// GC already does the refcounting for us, so there's nothing to hand-roll.
type mmapHandle struct {
	region *mmapfile.Region
}

func newMmapHandle(region *mmapfile.Region) *mmapHandle {
	h := &mmapHandle{region: region}
	// unmap once every Data referencing this handle has been collected,
	// even if the caller never explicitly releases the entry body.
	runtime.SetFinalizer(h, func(h *mmapHandle) {
		_ = h.region.Close()
	})
	return h
}

type span struct {
	bytes  []byte
	handle *mmapHandle // non-nil if bytes point into a memory map
}

// Data is an immutable, possibly non-contiguous view over bytes that either
// live in a normal Go allocation or are backed by a memory-mapped file
// range. It supports sub-ranging and concatenation without copying.
type Data struct {
	spans []span
	size  int64
	null  bool
}

// NullData returns a Data value representing "no data" -- distinct from an
// empty-but-present blob. Used when mmap fails or an operation reports
// failure without a mapped body.
func NullData() Data {
	return Data{null: true}
}

// NewData wraps caller-owned bytes in a Data value without copying them.
// The caller must not mutate b afterward.
func NewData(b []byte) Data {
	if len(b) == 0 {
		return Data{}
	}
	return Data{spans: []span{{bytes: b}}, size: int64(len(b))}
}

func newMappedData(region *mmapfile.Region) Data {
	b := region.Bytes()
	if len(b) == 0 {
		return Data{}
	}
	h := newMmapHandle(region)
	return Data{spans: []span{{bytes: b, handle: h}}, size: int64(len(b))}
}

// Size returns the logical byte length of d.
func (d Data) Size() int64 { return d.size }

// IsNull reports whether d represents the absence of data, as opposed to a
// present-but-empty blob.
func (d Data) IsNull() bool { return d.null }

// Apply invokes visit once per contiguous span backing d, in logical order.
// visit returns false to stop iteration early.
func (d Data) Apply(visit func(b []byte) bool) {
	for _, s := range d.spans {
		if !visit(s.bytes) {
			return
		}
	}
}

// Bytes returns a single contiguous slice for d, copying only if d is
// backed by more than one span.
func (d Data) Bytes() []byte {
	if len(d.spans) == 0 {
		return nil
	}
	if len(d.spans) == 1 {
		return d.spans[0].bytes
	}
	out := make([]byte, 0, d.size)
	for _, s := range d.spans {
		out = append(out, s.bytes...)
	}
	return out
}

// Digest computes the checksum over d's bytes without requiring them to be
// contiguous; digest.Spans joins multiple spans into one buffer internally.
func (d Data) Digest() uint32 {
	spans := make([][]byte, len(d.spans))
	for i, s := range d.spans {
		spans[i] = s.bytes
	}
	return digest.Spans(spans)
}

// Subrange returns a view of d covering [offset, offset+length) without
// copying. It panics if the range is out of bounds -- callers are expected
// to have already validated offsets against d.Size() (as the entry decoder
// does before calling this).
func (d Data) Subrange(offset, length int64) Data {
	if offset < 0 || length < 0 || offset+length > d.size {
		panic("netcache: Data.Subrange out of bounds")
	}
	if length == 0 {
		return Data{}
	}
	out := Data{size: length}
	remainingSkip := offset
	remainingTake := length
	for _, s := range d.spans {
		spanLen := int64(len(s.bytes))
		if remainingSkip >= spanLen {
			remainingSkip -= spanLen
			continue
		}
		start := remainingSkip
		end := spanLen
		if end-start > remainingTake {
			end = start + remainingTake
		}
		out.spans = append(out.spans, span{bytes: s.bytes[start:end], handle: s.handle})
		remainingTake -= end - start
		remainingSkip = 0
		if remainingTake == 0 {
			break
		}
	}
	return out
}

// Concatenate returns a Data whose logical bytes are a followed by b,
// without copying either.
func Concatenate(a, b Data) Data {
	if a.size == 0 {
		return b
	}
	if b.size == 0 {
		return a
	}
	out := Data{size: a.size + b.size}
	out.spans = append(out.spans, a.spans...)
	out.spans = append(out.spans, b.spans...)
	return out
}
