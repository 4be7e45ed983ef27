// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nblair/netcache/internal/filter"
	"github.com/nblair/netcache/internal/fsutil"
	"github.com/nblair/netcache/internal/workqueue"
)

// currentVersion is the on-disk format version this build writes and
// reads. Entries encoded by any other version are treated as absent.
const currentVersion uint32 = 1

// pageSize is the granularity entry files are padded to before the body,
// so a body can later be memory-mapped on a page boundary. It matches the
// value most POSIX systems report for os.Getpagesize; hardcoding it (like
// the original does with its own constant) keeps entry file layout
// independent of the machine that happens to be running GC.
const pageSize = 4096

// Storage is a persistent, content-addressed cache of opaque header/body
// pairs, backed by one file per entry under baseDirectoryPath. All
// mutable bookkeeping (pending/active operations, the contents filter,
// approximateSize, shrinkInProgress) is owned by a single logical main
// context, enforced here with a plain sync.Mutex whose critical sections
// never touch disk -- actual I/O always happens after unlocking. Retrieve
// and Store/Update I/O runs on goroutines bounded by readLimiter or
// writeLimiter; Clear, shrink passes, and damaged-entry removal are not
// counted against either limiter.
type Storage struct {
	baseDirectoryPath string
	versionRoot       string
	logger            *slog.Logger
	now               func() int64
	metrics           *Metrics

	ioPool         *workqueue.Pool
	backgroundPool *workqueue.Pool
	readLimiter    *workqueue.Limiter
	writeLimiter   *workqueue.Limiter

	mu                  sync.Mutex
	closed              bool
	maximumSize         int64
	approximateSize     int64
	deletionProbability float64
	shrinkInProgress    bool
	rng                 *rand.Rand

	contentsFilter *filter.Filter

	pendingReadOrder []string
	pendingReads     map[string]*readOperation
	activeReads      map[string]*readOperation

	// Writes are never coalesced by key (see writeOperation): pendingWrites
	// is a plain FIFO and activeWrites a plain set, both possibly holding
	// more than one operation for the same key.
	pendingWrites []*writeOperation
	activeWrites  []*writeOperation
}

// Open opens (creating if necessary) a Storage rooted at baseDirectoryPath.
// It scans the current version's directory once to rebuild approximateSize
// and the contents filter, and deletes any sibling directory that isn't a
// recognized "Version N" directory left over from an incompatible build.
func Open(baseDirectoryPath string, opts ...StorageOption) (*Storage, error) {
	cfg := defaultStorageConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	versionRoot := filepath.Join(baseDirectoryPath, fsutil.VersionDirName(currentVersion))
	if err := fsutil.EnsureDirectory(versionRoot); err != nil {
		return nil, err
	}
	if err := fsutil.DeleteOldVersions(baseDirectoryPath, versionRoot); err != nil {
		cfg.logger.Warn("netcache: failed to delete stale version directories", "error", err)
	}

	s := &Storage{
		baseDirectoryPath:   baseDirectoryPath,
		versionRoot:         versionRoot,
		logger:              cfg.logger,
		now:                 cfg.now,
		metrics:             cfg.metrics,
		ioPool:              workqueue.NewPool("io"),
		backgroundPool:      workqueue.NewPool("background-io"),
		readLimiter:         workqueue.NewLimiter(int64(cfg.maxActiveReads)),
		writeLimiter:        workqueue.NewLimiter(int64(cfg.maxActiveWrites)),
		maximumSize:         cfg.maximumSize,
		deletionProbability: cfg.deletionProbability,
		rng:                 rand.New(rand.NewPCG(uint64(cfg.now()), 0xC0FFEE)),
		pendingReads:        make(map[string]*readOperation),
		activeReads:         make(map[string]*readOperation),
	}

	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// initialize walks the version directory once, summing on-disk file sizes
// into approximateSize and seeding the contents filter from each file's
// name (the entry's hex-encoded hash). It never opens or decodes any
// entry file -- a stale or corrupt entry is only discovered lazily, on
// its next Retrieve, matching the original's cheap stat-only startup
// scan.
func (s *Storage) initialize() error {
	var files []fsutil.EntryFile
	var total int64
	if err := fsutil.Traverse(s.versionRoot, func(f fsutil.EntryFile) error {
		files = append(files, f)
		total += f.Size
		return nil
	}); err != nil {
		return err
	}

	s.contentsFilter = filter.New(len(files))
	for _, f := range files {
		hash, err := StringToHash(filepath.Base(f.Path))
		if err != nil {
			continue
		}
		s.contentsFilter.Add(ToShortHash(hash))
	}
	s.approximateSize = total
	return nil
}

func opKey(k Key) string {
	return k.Partition + "\x00" + k.HashString()
}

// findWriteEntry scans ops for the most recently submitted write matching
// key, for Retrieve's read-your-writes check. Callers must hold s.mu.
func findWriteEntry(ops []*writeOperation, key Key) (Entry, bool) {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].entry.Key.Equal(key) {
			return ops[i].entry, true
		}
	}
	return Entry{}, false
}

// removeWriteOp splices op out of ops by pointer identity. Callers must
// hold s.mu.
func removeWriteOp(ops []*writeOperation, op *writeOperation) []*writeOperation {
	for i, w := range ops {
		if w == op {
			return append(ops[:i], ops[i+1:]...)
		}
	}
	return ops
}

// ApproximateSize returns the engine's best estimate of total on-disk
// bytes used by entries, updated incrementally as writes and evictions
// happen rather than by re-stating the filesystem.
func (s *Storage) ApproximateSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approximateSize
}

// SetMaximumSize changes the byte budget the shrink loop enforces and, if
// the new budget is already exceeded, kicks off a shrink pass.
func (s *Storage) SetMaximumSize(bytes int64) {
	s.mu.Lock()
	s.maximumSize = bytes
	needsShrink := s.maximumSize > 0 && s.approximateSize > s.maximumSize && !s.shrinkInProgress
	if needsShrink {
		s.shrinkInProgress = true
	}
	s.mu.Unlock()

	if needsShrink {
		s.backgroundPool.Go(s.runShrinkPass)
	}
}

// Close stops the Storage from accepting new operations without waiting;
// operations already in flight are allowed to finish on their own
// goroutines.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Retrieve looks up key, blocking until the result is known or ctx is
// done. Multiple concurrent Retrieve calls for the same key share a
// single disk read. A pending or active Store/Update for the same key is
// observed instead of the disk, so a reader never sees a state older than
// its own in-flight write.
func (s *Storage) Retrieve(ctx context.Context, key Key, priority int) (Entry, error) {
	if err := key.validate(); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Entry{}, ErrClosed
	}
	if s.maximumSize == 0 {
		s.mu.Unlock()
		s.recordMiss()
		return Entry{}, ErrNotFound
	}

	k := opKey(key)

	// Read-your-writes: a pending or active write for this key is
	// authoritative over whatever's on disk (or not yet on disk).
	if e, ok := findWriteEntry(s.pendingWrites, key); ok {
		s.mu.Unlock()
		s.recordHit()
		return e, nil
	}
	if e, ok := findWriteEntry(s.activeWrites, key); ok {
		s.mu.Unlock()
		s.recordHit()
		return e, nil
	}

	if !s.contentsFilter.MayContain(key.ShortHash()) {
		s.mu.Unlock()
		s.recordMiss()
		return Entry{}, ErrNotFound
	}

	result := make(chan struct {
		entry Entry
		err   error
	}, 1)
	cb := func(e Entry, err error) {
		result <- struct {
			entry Entry
			err   error
		}{e, err}
	}

	if op, ok := s.activeReads[k]; ok {
		op.callbacks = append(op.callbacks, cb)
	} else if op, ok := s.pendingReads[k]; ok {
		op.callbacks = append(op.callbacks, cb)
	} else {
		op := &readOperation{key: key, priority: priority, callbacks: []func(Entry, error){cb}}
		s.pendingReads[k] = op
		s.pendingReadOrder = append(s.pendingReadOrder, k)
	}
	s.mu.Unlock()

	s.dispatchPendingReadOperations()

	select {
	case r := <-result:
		if r.err == nil {
			s.recordHit()
		} else {
			s.recordMiss()
		}
		return r.entry, r.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func (s *Storage) recordHit() {
	if s.metrics != nil {
		s.metrics.Hits.Inc()
	}
}

func (s *Storage) recordMiss() {
	if s.metrics != nil {
		s.metrics.Misses.Inc()
	}
}

// Store writes a new entry for key, replacing any existing one, blocking
// until the write completes or ctx is done. The returned Entry is the one
// actually persisted; it is the zero Entry if the write failed, the cache
// is disabled, or ctx was done first.
func (s *Storage) Store(ctx context.Context, key Key, header, body Data) (Entry, error) {
	if err := key.validate(); err != nil {
		return Entry{}, err
	}
	entry := Entry{Key: key, Timestamp: time.UnixMilli(s.now()), Header: header, Body: body}
	return s.submitWrite(ctx, entry, nil, false)
}

// Update rewrites just the header of an existing entry, keeping its body,
// timestamp bumped to now. If the new header happens to encode to the
// same page-rounded size as the old one, this is a cheap in-place
// rewrite; otherwise it silently falls back to a full rewrite.
func (s *Storage) Update(ctx context.Context, existing Entry, newHeader Data) (Entry, error) {
	if err := existing.Key.validate(); err != nil {
		return Entry{}, err
	}
	entry := Entry{Key: existing.Key, Timestamp: time.UnixMilli(s.now()), Header: newHeader, Body: existing.Body}
	return s.submitWrite(ctx, entry, &existing, true)
}

// submitWrite queues entry as its own writeOperation -- never merged with
// another in-flight write for the same key -- and blocks until it is
// dispatched and completes, or ctx is done first.
func (s *Storage) submitWrite(ctx context.Context, entry Entry, existing *Entry, headerOnly bool) (Entry, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Entry{}, ErrClosed
	}
	if s.maximumSize == 0 {
		s.mu.Unlock()
		return Entry{}, ErrCacheDisabled
	}

	result := make(chan struct {
		entry Entry
		err   error
	}, 1)
	cb := func(e Entry, err error) {
		result <- struct {
			entry Entry
			err   error
		}{e, err}
	}

	op := &writeOperation{entry: entry, existingEntry: existing, headerOnly: headerOnly, callbacks: []func(Entry, error){cb}}
	s.pendingWrites = append(s.pendingWrites, op)
	s.mu.Unlock()

	s.dispatchPendingWriteOperations()

	select {
	case r := <-result:
		return r.entry, r.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

// Clear removes every entry, resetting the contents filter and
// approximateSize. Pending and active operations are left to finish. Each
// partition subdirectory is swept concurrently, the way the original
// deletes files per-partition rather than serially.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	partitions, err := fsutil.Partitions(s.versionRoot)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, partition := range partitions {
		partitionPath := filepath.Join(s.versionRoot, partition)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return os.RemoveAll(partitionPath)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.contentsFilter.Clear()
	s.approximateSize = 0
	s.mu.Unlock()
	return nil
}

// Traverse calls fn once for every entry currently on disk, in no
// particular order, with only its key, timestamp, and header decoded --
// Body is always empty, since a listing pass never memory-maps a file's
// body. Traversal stops early if fn returns false. Entries that fail to
// decode are silently skipped, not deleted: unlike Retrieve, a bad file
// found during a plain listing is left alone for retrieve or a shrink
// pass to deal with.
func (s *Storage) Traverse(ctx context.Context, fn func(Entry) bool) error {
	err := fsutil.Traverse(s.versionRoot, func(f fsutil.EntryFile) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hash, err := StringToHash(filepath.Base(f.Path))
		if err != nil {
			return nil
		}
		key, err := NewKey(f.Partition, hash)
		if err != nil {
			return nil
		}
		entry, ok := s.decodeEntryHeaderOnly(f.Path, key)
		if !ok {
			return nil
		}
		if !fn(entry) {
			return errStopTraverse
		}
		return nil
	})
	if err == errStopTraverse {
		return nil
	}
	return err
}
