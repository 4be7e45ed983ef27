// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmapfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapReadsFileContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	content := make([]byte, 4096)
	copy(content, []byte("hello, mmap"))
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	region, err := Map(int(f.Fd()), 0, len(content))
	require.NoError(t, err)
	defer region.Close()

	require.Equal(t, content, region.Bytes())
}

func TestMapZeroLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	region, err := Map(int(f.Fd()), 0, 0)
	require.NoError(t, err)
	require.Empty(t, region.Bytes())
	require.NoError(t, region.Close())
}

func TestMapAtOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	content := make([]byte, 8192)
	copy(content[4096:], []byte("second page"))
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	region, err := Map(int(f.Fd()), 4096, 11)
	require.NoError(t, err)
	defer region.Close()

	require.Equal(t, "second page", string(region.Bytes()))
}
