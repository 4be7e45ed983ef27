// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNullDataIsNull(t *testing.T) {
	d := NullData()
	require.True(t, d.IsNull())
	require.Equal(t, int64(0), d.Size())
}

func TestNewDataRoundTrips(t *testing.T) {
	b := []byte("hello world")
	d := NewData(b)
	require.False(t, d.IsNull())
	require.Equal(t, int64(len(b)), d.Size())
	require.Equal(t, b, d.Bytes())
}

func TestConcatenateNoCopyView(t *testing.T) {
	a := NewData([]byte("hello "))
	b := NewData([]byte("world"))
	c := Concatenate(a, b)
	require.Equal(t, "hello world", string(c.Bytes()))
	require.Equal(t, int64(11), c.Size())
}

func TestConcatenateWithEmptyReturnsOther(t *testing.T) {
	a := NewData([]byte("hello"))
	require.Equal(t, "hello", string(Concatenate(a, Data{}).Bytes()))
	require.Equal(t, "hello", string(Concatenate(Data{}, a).Bytes()))
}

func TestSubrangeAcrossConcatenatedSpans(t *testing.T) {
	a := NewData([]byte("hello "))
	b := NewData([]byte("world"))
	c := Concatenate(a, b)

	require.Equal(t, "lo wo", string(c.Subrange(3, 5).Bytes()))
	require.Equal(t, "world", string(c.Subrange(6, 5).Bytes()))
	require.Equal(t, "", string(c.Subrange(0, 0).Bytes()))
}

func TestSubrangeOutOfBoundsPanics(t *testing.T) {
	d := NewData([]byte("hello"))
	require.Panics(t, func() { d.Subrange(0, 100) })
	require.Panics(t, func() { d.Subrange(-1, 1) })
}

func TestDataDigestStableAcrossSpans(t *testing.T) {
	whole := NewData([]byte("hello world"))
	split := Concatenate(NewData([]byte("hello ")), NewData([]byte("world")))
	require.Equal(t, whole.Digest(), split.Digest())
}

func TestDataApplyVisitsAllSpansInOrder(t *testing.T) {
	c := Concatenate(NewData([]byte("a")), NewData([]byte("b")))
	var got []byte
	c.Apply(func(b []byte) bool {
		got = append(got, b...)
		return true
	})
	require.Equal(t, "ab", string(got))
}
