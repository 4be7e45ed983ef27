// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"encoding/binary"

	"github.com/nblair/netcache/internal/digest"
)

// Decoder reads fixed-width fields from a buffer in order, mirroring
// Encoder's field order. Any read past the end of the buffer sticks the
// Decoder in a failed state; every subsequent method returns the zero
// value and false until the caller gives up on the record.
type Decoder struct {
	buf    []byte
	off    int
	failed bool
}

// NewDecoder wraps buf for sequential decoding.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Uint32 decodes a 4-byte little-endian field.
func (d *Decoder) Uint32() (uint32, bool) {
	if d.failed || d.off+4 > len(d.buf) {
		d.failed = true
		return 0, false
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off : d.off+4])
	d.off += 4
	return v, true
}

// Uint64 decodes an 8-byte little-endian field.
func (d *Decoder) Uint64() (uint64, bool) {
	if d.failed || d.off+8 > len(d.buf) {
		d.failed = true
		return 0, false
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off : d.off+8])
	d.off += 8
	return v, true
}

// Bytes decodes n raw bytes. The returned slice aliases the Decoder's
// backing buffer -- callers must copy it if they need it to outlive buf.
func (d *Decoder) Bytes(n int) ([]byte, bool) {
	if d.failed || n < 0 || d.off+n > len(d.buf) {
		d.failed = true
		return nil, false
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, true
}

// VerifyChecksum reads the next 4 bytes as a trailing checksum and
// verifies it against Sum32 of everything decoded so far (not including
// the checksum itself). On success it advances past the checksum field.
func (d *Decoder) VerifyChecksum() bool {
	if d.failed {
		return false
	}
	expected, ok := d.Uint32()
	if !ok {
		return false
	}
	got := digest.Sum32(d.buf[:d.off-4])
	if got != expected {
		d.failed = true
		return false
	}
	return true
}

// Failed reports whether any prior decode operation ran past the end of
// the buffer or failed a checksum.
func (d *Decoder) Failed() bool {
	return d.failed
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}
