// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T, b byte) Key {
	t.Helper()
	var h HashType
	h[0] = b
	h[1] = 0x42
	k, err := NewKey("example.com", h)
	require.NoError(t, err)
	return k
}

func TestStoreThenRetrieveRoundTrips(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 1)
	header := NewData([]byte("header-bytes"))
	body := NewData([]byte("the response body"))

	stored, err := s.Store(ctx, key, header, body)
	require.NoError(t, err)
	require.False(t, stored.IsNull())

	got, err := s.Retrieve(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, "header-bytes", string(got.Header.Bytes()))
	require.Equal(t, "the response body", string(got.Body.Bytes()))
}

func TestRetrieveMissingKeyReturnsNotFound(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Retrieve(context.Background(), newTestKey(t, 9), 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadYourWrites(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 2)

	// A Retrieve issued for a key while its own Store is still queued must
	// never report ErrNotFound; it observes the pending/active write
	// directly instead of racing the disk. Every write slot is held so the
	// Store stays in pendingWrites until the Retrieve has run.
	held := 0
	for s.writeLimiter.TryAcquire() {
		held++
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Store(ctx, key, NewData([]byte("h")), NewData([]byte("b")))
		require.NoError(t, err)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.pendingWrites) == 1
	}, 2*time.Second, time.Millisecond)

	got, err := s.Retrieve(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, key, got.Key)

	for ; held > 0; held-- {
		s.writeLimiter.Release()
	}
	s.dispatchPendingWriteOperations()
	<-done
}

func TestUpdateReplacesHeaderKeepsBody(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 3)

	original, err := s.Store(ctx, key, NewData([]byte("old-header")), NewData([]byte("body")))
	require.NoError(t, err)

	updated, err := s.Update(ctx, original, NewData([]byte("new-header")))
	require.NoError(t, err)
	require.Equal(t, "new-header", string(updated.Header.Bytes()))

	got, err := s.Retrieve(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, "new-header", string(got.Header.Bytes()))
	require.Equal(t, "body", string(got.Body.Bytes()))
}

func TestUpdateSameEncodedSizeIsHeaderOnlyRewrite(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 4)

	original, err := s.Store(ctx, key, NewData([]byte("aaaa")), NewData(make([]byte, 10000)))
	require.NoError(t, err)

	path := filepath.Join(s.versionRoot, key.Partition, key.HashString())
	before, err := os.Stat(path)
	require.NoError(t, err)

	updated, err := s.Update(ctx, original, NewData([]byte("bbbb")))
	require.NoError(t, err)
	require.Equal(t, "bbbb", string(updated.Header.Bytes()))

	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, before.Size(), after.Size())
}

func TestCorruptEntryIsTreatedAsMiss(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 5)
	_, err = s.Store(ctx, key, NewData([]byte("h")), NewData([]byte("body")))
	require.NoError(t, err)

	path := filepath.Join(s.versionRoot, key.Partition, key.HashString())
	require.NoError(t, os.WriteFile(path, []byte("not a valid entry file"), 0o644))

	_, err = s.Retrieve(ctx, key, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRetrieveSurvivesHeaderLargerThanTraversePrefix(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 7)
	// A real HTTP response header block (many cookies, a long CSP, Vary)
	// can comfortably exceed the 16 KiB prefix Traverse reads; Retrieve
	// must still round-trip it rather than treat it as corrupt.
	header := bytes.Repeat([]byte("x"), 32<<10)
	body := []byte("body")

	_, err = s.Store(ctx, key, NewData(header), NewData(body))
	require.NoError(t, err)

	entry, err := s.Retrieve(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, header, entry.Header.Bytes())
	require.Equal(t, body, entry.Body.Bytes())
}

func TestClearRemovesAllEntries(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 6)
	_, err = s.Store(ctx, key, NewData([]byte("h")), NewData([]byte("b")))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))

	_, err = s.Retrieve(ctx, key, 0)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int64(0), s.ApproximateSize())
}

func TestTraverseVisitsStoredEntries(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i := byte(0); i < 3; i++ {
		_, err := s.Store(ctx, newTestKey(t, 10+i), NewData([]byte("h")), NewData([]byte("b")))
		require.NoError(t, err)
	}

	seen := 0
	require.NoError(t, s.Traverse(ctx, func(e Entry) bool {
		seen++
		return true
	}))
	require.Equal(t, 3, seen)
}

func TestTraverseSkipsCorruptEntryWithoutDeletingIt(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 30)
	_, err = s.Store(ctx, key, NewData([]byte("h")), NewData([]byte("body")))
	require.NoError(t, err)

	path := filepath.Join(s.versionRoot, key.Partition, key.HashString())
	require.NoError(t, os.WriteFile(path, []byte("not a valid entry file"), 0o644))

	seen := 0
	require.NoError(t, s.Traverse(ctx, func(e Entry) bool {
		seen++
		return true
	}))
	require.Equal(t, 0, seen)

	// Unlike Retrieve, a plain listing pass never deletes what it can't
	// decode -- the damaged file must still be there afterward.
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestTraverseDoesNotIncludeBody(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 31)
	_, err = s.Store(ctx, key, NewData([]byte("h")), NewData([]byte("body")))
	require.NoError(t, err)

	seen := 0
	require.NoError(t, s.Traverse(ctx, func(e Entry) bool {
		seen++
		require.Equal(t, []byte("h"), e.Header.Bytes())
		require.Empty(t, e.Body.Bytes())
		return true
	}))
	require.Equal(t, 1, seen)
}

func TestTraverseStopsEarly(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i := byte(0); i < 5; i++ {
		_, err := s.Store(ctx, newTestKey(t, 20+i), NewData([]byte("h")), NewData([]byte("b")))
		require.NoError(t, err)
	}

	seen := 0
	require.NoError(t, s.Traverse(ctx, func(e Entry) bool {
		seen++
		return seen < 2
	}))
	require.Equal(t, 2, seen)
}

func TestShrinkEvictsUnderBudget(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30), WithDeletionProbability(1.0))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	body := make([]byte, 1024)
	for i := byte(0); i < 10; i++ {
		_, err := s.Store(ctx, newTestKey(t, 30+i), NewData([]byte("h")), NewData(body))
		require.NoError(t, err)
	}
	require.Greater(t, s.ApproximateSize(), int64(0))

	s.SetMaximumSize(1)

	require.Eventually(t, func() bool {
		return s.ApproximateSize() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReopenRebuildsApproximateSizeAndFilter(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, WithMaximumSize(1<<30))
	require.NoError(t, err)

	ctx := context.Background()
	key := newTestKey(t, 40)
	_, err = s.Store(ctx, key, NewData([]byte("h")), NewData([]byte("body-bytes")))
	require.NoError(t, err)
	sizeBefore := s.ApproximateSize()
	require.NoError(t, s.Close())

	s2, err := Open(dir, WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, sizeBefore, s2.ApproximateSize())

	got, err := s2.Retrieve(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, "body-bytes", string(got.Body.Bytes()))
}

func TestCacheDisabledMissesAndDoesNotWrite(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 60)

	_, err = s.Retrieve(ctx, key, 0)
	require.ErrorIs(t, err, ErrNotFound)

	stored, err := s.Store(ctx, key, NewData([]byte("h")), NewData([]byte("b")))
	require.ErrorIs(t, err, ErrCacheDisabled)
	require.True(t, stored.IsNull())
	require.NoDirExists(t, filepath.Join(s.versionRoot, key.Partition))

	updated, err := s.Update(ctx, Entry{Key: key}, NewData([]byte("h2")))
	require.ErrorIs(t, err, ErrCacheDisabled)
	require.True(t, updated.IsNull())
}

func TestConcurrentStoresToSameKeyAreNotLost(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 61)
	bodies := []string{"first-body", "second-body"}

	var wg sync.WaitGroup
	results := make([]Entry, len(bodies))
	errs := make([]error, len(bodies))
	for i, b := range bodies {
		wg.Add(1)
		go func(i int, b string) {
			defer wg.Done()
			results[i], errs[i] = s.Store(ctx, key, NewData([]byte("h")), NewData([]byte(b)))
		}(i, b)
	}
	wg.Wait()

	// Each Store call gets back the entry actually persisted for it, not
	// whichever payload happened to be in flight for a concurrent caller.
	for i, b := range bodies {
		require.NoError(t, errs[i])
		require.Equal(t, b, string(results[i].Body.Bytes()))
	}

	got, err := s.Retrieve(ctx, key, 0)
	require.NoError(t, err)
	require.Contains(t, bodies, string(got.Body.Bytes()))
}

func TestTruncatedBodyIsTreatedAsMissNotSIGBUS(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := newTestKey(t, 62)
	_, err = s.Store(ctx, key, NewData([]byte("h")), NewData(make([]byte, 8192)))
	require.NoError(t, err)

	path := filepath.Join(s.versionRoot, key.Partition, key.HashString())
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-100))

	_, err = s.Retrieve(ctx, key, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestShrinkSweepsEveryFileAndRebuildsApproximateSize(t *testing.T) {
	s, err := Open(t.TempDir(), WithMaximumSize(1<<30))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	const n = 100
	body := make([]byte, 100)
	for i := 0; i < n; i++ {
		_, err := s.Store(ctx, newTestKey(t, byte(i)), NewData([]byte("h")), NewData(body))
		require.NoError(t, err)
	}

	s.SetMaximumSize(1)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.shrinkInProgress
	}, 2*time.Second, 10*time.Millisecond)

	remaining := 0
	require.NoError(t, s.Traverse(ctx, func(e Entry) bool {
		remaining++
		return true
	}))
	// deletionProbability defaults to 0.25, so each of the 100 files
	// independently survives with probability 0.75; a full, uninterrupted
	// sweep lands close to 75 survivors.
	require.InDelta(t, 75, remaining, 25)

	var total int64
	err = filepath.Walk(filepath.Join(s.versionRoot, "example.com"), func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() {
			return walkErr
		}
		total += info.Size()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, total, s.ApproximateSize())
}

func TestVersionDirectoryIsIsolatedFromStrayFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "leftover-from-old-build"), 0o755))

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoDirExists(t, filepath.Join(dir, "leftover-from-old-build"))
	require.DirExists(t, filepath.Join(dir, "Version 1"))
}
