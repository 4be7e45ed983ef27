// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := NewEncoder(32)
	e.PutUint32(42)
	e.PutUint64(1234567890123)
	e.PutBytes([]byte("partition-name"))
	e.EncodeChecksum()

	d := NewDecoder(e.Bytes())
	v32, ok := d.Uint32()
	require.True(t, ok)
	require.Equal(t, uint32(42), v32)

	v64, ok := d.Uint64()
	require.True(t, ok)
	require.Equal(t, uint64(1234567890123), v64)

	b, ok := d.Bytes(len("partition-name"))
	require.True(t, ok)
	require.Equal(t, "partition-name", string(b))

	require.True(t, d.VerifyChecksum())
	require.False(t, d.Failed())
}

func TestDecodeTruncatedBufferFails(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3})
	_, ok := d.Uint32()
	require.False(t, ok)
	require.True(t, d.Failed())

	_, ok = d.Uint64()
	require.False(t, ok)
}

func TestVerifyChecksumRejectsTamperedBuffer(t *testing.T) {
	e := NewEncoder(8)
	e.PutUint32(1)
	e.EncodeChecksum()
	buf := e.Bytes()
	buf[0] ^= 0xFF

	d := NewDecoder(buf)
	_, _ = d.Uint32()
	require.False(t, d.VerifyChecksum())
}

func TestDecoderBytesRejectsNegativeLength(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3, 4})
	_, ok := d.Bytes(-1)
	require.False(t, ok)
}
