// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKeyRejectsEmptyPartition(t *testing.T) {
	var hash HashType
	_, err := NewKey("", hash)
	require.Error(t, err)
}

func TestKeyHashStringRoundTrips(t *testing.T) {
	hash, err := StringToHash(strings.Repeat("ab", HashSize))
	require.NoError(t, err)

	k, err := NewKey("partition", hash)
	require.NoError(t, err)
	require.Equal(t, hash, k.Hash)

	back, err := StringToHash(k.HashString())
	require.NoError(t, err)
	require.Equal(t, hash, back)
}

func TestStringToHashRejectsWrongLength(t *testing.T) {
	_, err := StringToHash("deadbeef")
	require.Error(t, err)
}

func TestKeyEqual(t *testing.T) {
	var h1, h2 HashType
	h1[0] = 1
	h2[0] = 2

	a, err := NewKey("p", h1)
	require.NoError(t, err)
	b, err := NewKey("p", h1)
	require.NoError(t, err)
	c, err := NewKey("p", h2)
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestToShortHashDeterministic(t *testing.T) {
	var h HashType
	h[3] = 0x42
	require.Equal(t, ToShortHash(h), ToShortHash(h))
}
