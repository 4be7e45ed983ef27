// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package entryio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nblair/netcache/internal/digest"
)

const testPageSize = 4096

func testHash(b byte) [HashSize]byte {
	var h [HashSize]byte
	h[0] = b
	return h
}

func TestRoundUpToPage(t *testing.T) {
	require.Equal(t, int64(0), RoundUpToPage(0, testPageSize))
	require.Equal(t, int64(testPageSize), RoundUpToPage(1, testPageSize))
	require.Equal(t, int64(testPageSize), RoundUpToPage(testPageSize, testPageSize))
	require.Equal(t, int64(2*testPageSize), RoundUpToPage(testPageSize+1, testPageSize))
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	header := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n")
	body := []byte("hello, world")
	hash := testHash(7)

	enc := EncodeHeader(1, "partition-a", hash, 1_700_000_000_000, header, digest.Sum32(body), uint64(len(body)), testPageSize)
	require.Equal(t, int64(0), enc.BodyOffset%testPageSize)

	fileData := append(append([]byte{}, enc.Bytes...), body...)

	meta, gotHeader, err := DecodeHeader(fileData, 1, testPageSize)
	require.NoError(t, err)
	require.Equal(t, "partition-a", meta.Partition)
	require.Equal(t, hash, meta.Hash)
	require.Equal(t, header, gotHeader)
	require.Equal(t, uint64(len(body)), meta.BodySize)

	bodyBytes := fileData[meta.BodyOffset : meta.BodyOffset+int64(meta.BodySize)]
	require.True(t, VerifyBodyChecksum(meta, bodyBytes))
}

func TestDecodeHeaderRejectsWrongVersion(t *testing.T) {
	hash := testHash(1)
	enc := EncodeHeader(1, "p", hash, 0, []byte("h"), digest.Sum32(nil), 0, testPageSize)
	_, _, err := DecodeHeader(enc.Bytes, 2, testPageSize)
	require.Error(t, err)
}

func TestDecodeHeaderRejectsTruncatedFile(t *testing.T) {
	hash := testHash(2)
	header := []byte("some header bytes")
	enc := EncodeHeader(1, "p", hash, 0, header, digest.Sum32(nil), 0, testPageSize)
	truncated := enc.Bytes[:len(enc.Bytes)-len(header)/2]
	_, _, err := DecodeHeader(truncated, 1, testPageSize)
	require.Error(t, err)
}

func TestDecodeHeaderRejectsTamperedHeaderBytes(t *testing.T) {
	hash := testHash(3)
	header := []byte("some header bytes")
	enc := EncodeHeader(1, "p", hash, 0, header, digest.Sum32(nil), 0, testPageSize)
	buf := append([]byte{}, enc.Bytes...)
	buf[len(buf)-1] ^= 0xFF

	_, _, err := DecodeHeader(buf, 1, testPageSize)
	require.Error(t, err)
}

func TestEncodeHeaderNoPaddingWhenBodyEmpty(t *testing.T) {
	hash := testHash(4)
	enc := EncodeHeader(1, "p", hash, 0, []byte("h"), digest.Sum32(nil), 0, testPageSize)
	require.Equal(t, int64(len(enc.Bytes)), enc.BodyOffset)
}
