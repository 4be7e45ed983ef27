// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package iochan

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreateMakesParentDirs(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a", "b", "entry")

	c, err := Open(path, ModeCreate)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteAt(0, []byte("hello")))
}

func TestWriteThenReadAt(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "entry")

	c, err := Open(path, ModeCreate)
	require.NoError(t, err)
	require.NoError(t, c.WriteAt(0, []byte("0123456789")))
	require.NoError(t, c.Sync())
	require.NoError(t, c.Close())

	r, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadAt(2, 4)
	require.NoError(t, err)
	require.Equal(t, "2345", string(got))
}

func TestReadAtToEOF(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "entry")

	c, err := Open(path, ModeCreate)
	require.NoError(t, err)
	require.NoError(t, c.WriteAt(0, []byte("abcdef")))
	require.NoError(t, c.Close())

	r, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadAt(2, ReadToEOF)
	require.NoError(t, err)
	require.Equal(t, "cdef", string(got))
}

func TestOpenReadMissingFileFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"), ModeRead)
	require.Error(t, err)
}

func TestFileDescriptorIsUsable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "entry")
	c, err := Open(path, ModeCreate)
	require.NoError(t, err)
	defer c.Close()
	require.GreaterOrEqual(t, c.FileDescriptor(), 0)
}
