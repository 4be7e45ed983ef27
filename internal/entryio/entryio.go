// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package entryio lays out and parses the on-disk entry file format:
// a length-delimited metadata block (built with internal/codec), followed
// by the caller's opaque header bytes, zero-padding to the next page
// boundary, and finally the body bytes. It mirrors the split the original
// implementation makes between decodeEntryMetaData (fields + checksum) and
// decodeEntryHeader (adds the version/bounds/header-checksum checks), and
// the teacher's binary encoding style (datafile/file_header.go).
//
// This package knows nothing about Key or Data -- it works in terms of
// partition strings, fixed-width hashes, and raw byte slices, so the root
// package can layer its zero-copy Data type and mmap'd bodies on top
// without an import cycle.
package entryio

import (
	"fmt"

	"github.com/nblair/netcache/internal/codec"
	"github.com/nblair/netcache/internal/digest"
	"github.com/nblair/netcache/internal/unsafestring"
)

// HashSize matches netcache.HashSize; duplicated here (rather than
// imported) to keep this package free of a dependency on the root package.
const HashSize = 32

// TraverseHeaderReadSize is how many bytes of a candidate entry file
// traverse() reads synchronously before attempting to decode its header --
// carried over from the original's headerReadSize (16 KiB), generously
// larger than any realistic metadata+header block.
const TraverseHeaderReadSize = 16 << 10

// MetaData is the decoded form of an entry's on-disk metadata block, plus
// the two offsets derived from it once its size fields are known.
type MetaData struct {
	Version      uint32
	Partition    string
	Hash         [HashSize]byte
	TimeStampMS  int64
	HeaderCsum   uint32
	HeaderSize   uint64
	BodyCsum     uint32
	BodySize     uint64
	HeaderOffset int64
	BodyOffset   int64
}

// RoundUpToPage rounds n up to the next multiple of pageSize.
func RoundUpToPage(n int64, pageSize int) int64 {
	ps := int64(pageSize)
	if ps <= 0 {
		return n
	}
	if rem := n % ps; rem != 0 {
		return n + (ps - rem)
	}
	return n
}

// EncodeMetaData serializes m's fields (not including HeaderOffset/BodyOffset,
// which are derived, not stored) with a trailing checksum.
func EncodeMetaData(version uint32, partition string, hash [HashSize]byte, timeStampMS int64, headerChecksum uint32, headerSize uint64, bodyChecksum uint32, bodySize uint64) []byte {
	e := codec.NewEncoder(64 + len(partition))
	e.PutUint32(version)
	e.PutUint32(uint32(len(partition)))
	e.PutBytes(unsafestring.ToBytes(partition))
	e.PutBytes(hash[:])
	e.PutUint64(uint64(timeStampMS))
	e.PutUint32(headerChecksum)
	e.PutUint64(headerSize)
	e.PutUint32(bodyChecksum)
	e.PutUint64(bodySize)
	e.EncodeChecksum()
	return e.Bytes()
}

// DecodeMetaData decodes the metadata block at the front of buf and
// verifies its trailing checksum. pageSize is used to derive BodyOffset;
// an entry with an empty body has no padding (see EncodeHeader), so its
// BodyOffset is simply the end of the header. It does not check cacheStorageVersion against the caller's current
// version -- that's a policy decision left to the caller, matching the
// original's decodeEntryMetaData/decodeEntryHeader split.
func DecodeMetaData(buf []byte, pageSize int) (MetaData, bool) {
	d := codec.NewDecoder(buf)
	version, _ := d.Uint32()
	partitionLen, _ := d.Uint32()
	partitionBytes, _ := d.Bytes(int(partitionLen))
	hashBytes, _ := d.Bytes(HashSize)
	timeStampRaw, _ := d.Uint64()
	headerChecksum, _ := d.Uint32()
	headerSize, _ := d.Uint64()
	bodyChecksum, _ := d.Uint32()
	bodySize, _ := d.Uint64()
	if !d.VerifyChecksum() {
		return MetaData{}, false
	}

	var m MetaData
	m.Version = version
	m.Partition = string(partitionBytes)
	copy(m.Hash[:], hashBytes)
	m.TimeStampMS = int64(timeStampRaw)
	m.HeaderCsum = headerChecksum
	m.HeaderSize = headerSize
	m.BodyCsum = bodyChecksum
	m.BodySize = bodySize
	m.HeaderOffset = int64(d.Offset())
	m.BodyOffset = m.HeaderOffset + int64(headerSize)
	if bodySize > 0 {
		m.BodyOffset = RoundUpToPage(m.BodyOffset, pageSize)
	}
	return m, true
}

// VerifyHeaderChecksum reports whether headerBytes match m.HeaderCsum.
func VerifyHeaderChecksum(m MetaData, headerBytes []byte) bool {
	return digest.Sum32(headerBytes) == m.HeaderCsum
}

// VerifyBodyChecksum reports whether bodyBytes match m.BodyCsum. bodyBytes
// may come from a memory map; Sum32 only reads it.
func VerifyBodyChecksum(m MetaData, bodyBytes []byte) bool {
	return digest.Sum32(bodyBytes) == m.BodyCsum
}

// EncodedHeader is the metadata-block-plus-header-plus-padding region
// written at the front of an entry file. BodyOffset is where the body
// bytes (if any) begin, relative to the start of the file.
type EncodedHeader struct {
	Bytes      []byte
	BodyOffset int64
}

// EncodeHeader builds the encoded header region for an entry: the
// metadata block, the caller's header bytes, and (if bodySize > 0)
// zero-padding out to the next page boundary. header's checksum is
// computed here from the bytes given.
func EncodeHeader(version uint32, partition string, hash [HashSize]byte, timeStampMS int64, header []byte, bodyChecksum uint32, bodySize uint64, pageSize int) EncodedHeader {
	headerChecksum := digest.Sum32(header)
	meta := EncodeMetaData(version, partition, hash, timeStampMS, headerChecksum, uint64(len(header)), bodyChecksum, bodySize)

	buf := make([]byte, 0, len(meta)+len(header)+pageSize)
	buf = append(buf, meta...)
	buf = append(buf, header...)

	if bodySize == 0 {
		return EncodedHeader{Bytes: buf, BodyOffset: int64(len(buf))}
	}

	target := RoundUpToPage(int64(len(buf)), pageSize)
	if pad := int(target - int64(len(buf))); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return EncodedHeader{Bytes: buf, BodyOffset: target}
}

// DecodeHeader decodes and validates the metadata + header region of an
// entry file already loaded (or partially loaded, per traverse's
// 16 KiB read) into fileData. currentVersion rejects entries written by
// an incompatible version. It returns the metadata and the raw header
// bytes (a subslice of fileData -- callers own copying if needed).
func DecodeHeader(fileData []byte, currentVersion uint32, pageSize int) (MetaData, []byte, error) {
	m, ok := DecodeMetaData(fileData, pageSize)
	if !ok {
		return MetaData{}, nil, fmt.Errorf("netcache: metadata checksum mismatch or truncated record")
	}
	if m.Version != currentVersion {
		return MetaData{}, nil, fmt.Errorf("netcache: entry version %d != current %d", m.Version, currentVersion)
	}
	if m.HeaderOffset+int64(m.HeaderSize) > m.BodyOffset {
		return MetaData{}, nil, fmt.Errorf("netcache: header extends past body offset")
	}
	if m.HeaderOffset+int64(m.HeaderSize) > int64(len(fileData)) {
		return MetaData{}, nil, fmt.Errorf("netcache: header extends past available data")
	}
	headerBytes := fileData[m.HeaderOffset : m.HeaderOffset+int64(m.HeaderSize)]
	if !VerifyHeaderChecksum(m, headerBytes) {
		return MetaData{}, nil, fmt.Errorf("netcache: header checksum mismatch")
	}
	return m, headerBytes, nil
}
