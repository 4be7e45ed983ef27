// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package codec implements the small length-delimited encoding used for
// the entry metadata block: fixed-width integers and byte strings written
// in order, followed by a trailing checksum over everything written so
// far. It mirrors the binary style the teacher uses for its file header
// (datafile/file_header.go): little-endian, fixed field widths, no tags.
package codec

import (
	"encoding/binary"

	"github.com/nblair/netcache/internal/digest"
)

// Encoder appends fixed-width fields to an internal buffer in order.
// The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity pre-reserved for hintSize
// bytes, to avoid reallocation while encoding a known-shape record.
func NewEncoder(hintSize int) *Encoder {
	return &Encoder{buf: make([]byte, 0, hintSize)}
}

// PutUint32 appends v as 4 little-endian bytes.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutUint64 appends v as 8 little-endian bytes.
func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutBytes appends b verbatim, with no length prefix -- callers that need
// a variable-length field must encode its length separately first.
func (e *Encoder) PutBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// EncodeChecksum appends a trailing 4-byte checksum over everything
// written so far. Callers must call this exactly once, last.
func (e *Encoder) EncodeChecksum() {
	e.PutUint32(digest.Sum32(e.buf))
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}
