// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nblair/netcache/internal/entryio"
	"github.com/nblair/netcache/internal/fsutil"
	"github.com/nblair/netcache/internal/iochan"
	"github.com/nblair/netcache/internal/mmapfile"
)

// dispatchPendingReadOperations moves as many pending reads as the read
// limiter allows from pendingReads into activeReads and starts their I/O.
// It's safe (and cheap) to call this any time the set of pending reads or
// the limiter's occupancy might have changed.
func (s *Storage) dispatchPendingReadOperations() {
	for {
		s.mu.Lock()
		if len(s.pendingReadOrder) == 0 {
			s.mu.Unlock()
			return
		}
		if !s.readLimiter.TryAcquire() {
			s.mu.Unlock()
			return
		}

		// FIFO within a priority band: pick the earliest-submitted
		// pending read among those with the highest priority.
		best := 0
		for i, k := range s.pendingReadOrder {
			if s.pendingReads[k].priority > s.pendingReads[s.pendingReadOrder[best]].priority {
				best = i
			}
		}
		k := s.pendingReadOrder[best]
		s.pendingReadOrder = append(s.pendingReadOrder[:best], s.pendingReadOrder[best+1:]...)
		op := s.pendingReads[k]
		delete(s.pendingReads, k)
		s.activeReads[k] = op
		s.mu.Unlock()

		s.dispatchReadOperation(k, op)
	}
}

func (s *Storage) dispatchReadOperation(k string, op *readOperation) {
	s.ioPool.Go(func() {
		entry, err := s.performRead(op.key)

		s.mu.Lock()
		delete(s.activeReads, k)
		s.readLimiter.Release()
		s.mu.Unlock()

		for _, cb := range op.callbacks {
			cb(entry, err)
		}
		s.dispatchPendingReadOperations()
	})
}

// performRead does the actual disk I/O for one key and maps any decode,
// checksum, or truncation failure in decodeEntryFile to ErrNotFound: from
// a caller's perspective a damaged entry and a missing one both mean "go
// fetch it from the network again".
func (s *Storage) performRead(key Key) (Entry, error) {
	entry, err := s.decodeEntryFile(key)
	if err == errCorruptEntry {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// decodeEntryFile opens the entry file, decodes its metadata and header,
// and memory-maps its body. It returns the unexported errCorruptEntry
// sentinel (not ErrNotFound) for any failure that also schedules the
// offending file for background removal, so performRead's single mapping
// step is the only place that decision is made.
//
// Unlike Traverse's bounded prefix read, this is retrieve's path: a real
// entry's header (HTTP responses can carry many KB of cookies, CSP, and
// Vary directives) may exceed entryio.TraverseHeaderReadSize, and that
// must not be mistaken for corruption. It tries the same fast 16 KiB
// prefix first, then -- if only the header didn't fit, not the metadata
// block itself -- re-reads exactly as many bytes as the header needs.
func (s *Storage) decodeEntryFile(key Key) (Entry, error) {
	path := fsutil.FilePath(s.versionRoot, key.Partition, key.Hash)

	ch, err := iochan.Open(path, iochan.ModeRead)
	if err != nil {
		return Entry{}, ErrNotFound
	}
	defer ch.Close()

	fileSize, err := ch.Size()
	if err != nil {
		return Entry{}, ErrNotFound
	}

	prefix, err := ch.ReadAt(0, entryio.TraverseHeaderReadSize)
	if err != nil {
		return Entry{}, ErrNotFound
	}

	meta, headerBytes, err := entryio.DecodeHeader(prefix, currentVersion, pageSize)
	if err != nil {
		if partialMeta, ok := entryio.DecodeMetaData(prefix, pageSize); ok {
			needed := partialMeta.HeaderOffset + int64(partialMeta.HeaderSize)
			if needed > entryio.TraverseHeaderReadSize && needed <= fileSize {
				if full, rerr := ch.ReadAt(0, needed); rerr == nil {
					meta, headerBytes, err = entryio.DecodeHeader(full, currentVersion, pageSize)
				}
			}
		}
	}
	if err != nil {
		s.logger.Debug("netcache: dropping unreadable entry", "path", path, "error", err)
		s.scheduleRemoval(path, key)
		return Entry{}, errCorruptEntry
	}
	if meta.Partition != key.Partition || meta.Hash != key.Hash {
		s.scheduleRemoval(path, key)
		return Entry{}, errCorruptEntry
	}
	// A file truncated mid-write (process killed during performFullWrite)
	// can have a BodySize larger than what's actually on disk. mmap
	// itself won't catch this -- POSIX mmap succeeds past EOF and only
	// SIGBUSes on the first touch of a page beyond it -- so it must be
	// checked here, before mapping, exactly like the original's decodeEntry.
	if meta.BodyOffset+int64(meta.BodySize) > fileSize {
		s.scheduleRemoval(path, key)
		return Entry{}, errCorruptEntry
	}

	header := make([]byte, len(headerBytes))
	copy(header, headerBytes)

	var body Data
	if meta.BodySize == 0 {
		body = NewData(nil)
	} else {
		region, err := mmapfile.Map(ch.FileDescriptor(), meta.BodyOffset, int(meta.BodySize))
		if err != nil {
			s.scheduleRemoval(path, key)
			return Entry{}, errCorruptEntry
		}
		if !entryio.VerifyBodyChecksum(meta, region.Bytes()) {
			region.Close()
			s.scheduleRemoval(path, key)
			return Entry{}, errCorruptEntry
		}
		body = newMappedData(region)
	}

	return Entry{
		Key:       key,
		Timestamp: time.UnixMilli(meta.TimeStampMS),
		Header:    NewData(header),
		Body:      body,
	}, nil
}

// decodeEntryHeaderOnly reads the same bounded 16 KiB prefix traverse()
// always used and decodes just the metadata and header, with no mmap and
// no removal on failure: a listing pass should be cheap (no per-file body
// map) and read-only (a file that merely fails to decode during a sweep
// is left for retrieve or a shrink pass to deal with), matching the
// original traverse's channel->readSync(0, headerReadSize, ...) callback,
// which has no removeEntry branch at all. ok is false for anything that
// isn't a live, matching entry; callers should simply skip it.
func (s *Storage) decodeEntryHeaderOnly(path string, key Key) (Entry, bool) {
	ch, err := iochan.Open(path, iochan.ModeRead)
	if err != nil {
		return Entry{}, false
	}
	defer ch.Close()

	prefix, err := ch.ReadAt(0, entryio.TraverseHeaderReadSize)
	if err != nil {
		return Entry{}, false
	}

	meta, headerBytes, err := entryio.DecodeHeader(prefix, currentVersion, pageSize)
	if err != nil {
		return Entry{}, false
	}
	if meta.Partition != key.Partition || meta.Hash != key.Hash {
		return Entry{}, false
	}

	header := make([]byte, len(headerBytes))
	copy(header, headerBytes)

	return Entry{
		Key:       key,
		Timestamp: time.UnixMilli(meta.TimeStampMS),
		Header:    NewData(header),
		Body:      NewData(nil),
	}, true
}

// scheduleRemoval deletes a damaged entry's file on the background pool,
// off the caller's read path, and undoes its contents-filter membership.
func (s *Storage) scheduleRemoval(path string, key Key) {
	s.backgroundPool.Go(func() {
		_ = os.Remove(path)
		s.mu.Lock()
		s.contentsFilter.Remove(key.ShortHash())
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.CorruptionEvictions.Inc()
		}
	})
}

// dispatchPendingWriteOperations mirrors dispatchPendingReadOperations for
// the write queue. Unlike reads, writes are never merged by key (see
// writeOperation), so each dispatched op's entry/existingEntry/headerOnly
// fields are fixed at the moment it's created and never touched again --
// safe for dispatchWriteOperation's goroutine to read without holding
// s.mu for the length of the I/O.
func (s *Storage) dispatchPendingWriteOperations() {
	for {
		s.mu.Lock()
		if len(s.pendingWrites) == 0 {
			s.mu.Unlock()
			return
		}
		if !s.writeLimiter.TryAcquire() {
			s.mu.Unlock()
			return
		}
		op := s.pendingWrites[0]
		s.pendingWrites = s.pendingWrites[1:]
		s.activeWrites = append(s.activeWrites, op)

		// Speculative add: readers arriving while this write is in
		// flight should see it via activeWrites directly, but also
		// treat the key as present in the filter so a Retrieve that
		// misses the activeWrites scan by a hair still tries the disk
		// instead of taking the filter's fast-negative path.
		s.contentsFilter.Add(op.entry.Key.ShortHash())
		s.mu.Unlock()

		s.dispatchWriteOperation(op)
	}
}

func (s *Storage) dispatchWriteOperation(op *writeOperation) {
	s.backgroundPool.Go(func() {
		var err error
		if op.headerOnly && op.existingEntry != nil {
			err = s.performHeaderUpdate(*op.existingEntry, op.entry)
		} else {
			err = s.performFullWrite(op.entry)
		}

		s.mu.Lock()
		s.activeWrites = removeWriteOp(s.activeWrites, op)
		s.writeLimiter.Release()
		if err != nil {
			// Undo the speculative add; nothing was actually written.
			s.contentsFilter.Remove(op.entry.Key.ShortHash())
		}
		needsShrink := err == nil && s.maximumSize > 0 && s.approximateSize > s.maximumSize && !s.shrinkInProgress
		if needsShrink {
			s.shrinkInProgress = true
		}
		s.mu.Unlock()

		result := op.entry
		if err != nil {
			result = Entry{}
		}
		for _, cb := range op.callbacks {
			cb(result, err)
		}
		if needsShrink {
			s.backgroundPool.Go(s.runShrinkPass)
		}
		s.dispatchPendingWriteOperations()
	})
}

// performFullWrite encodes and writes an entire entry file from scratch.
func (s *Storage) performFullWrite(entry Entry) error {
	path := fsutil.FilePath(s.versionRoot, entry.Key.Partition, entry.Key.Hash)

	header := entry.Header.Bytes()
	body := entry.Body.Bytes()
	bodyChecksum := entry.Body.Digest()

	encoded := entryio.EncodeHeader(currentVersion, entry.Key.Partition, entry.Key.Hash, entry.Timestamp.UnixMilli(), header, bodyChecksum, uint64(len(body)), pageSize)

	var previousSize int64
	if info, statErr := os.Stat(path); statErr == nil {
		previousSize = info.Size()
	}

	ch, err := iochan.Open(path, iochan.ModeCreate)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.WriteAt(0, encoded.Bytes); err != nil {
		return err
	}
	if len(body) > 0 {
		if err := ch.WriteAt(encoded.BodyOffset, body); err != nil {
			return err
		}
	}
	if err := ch.Sync(); err != nil {
		return err
	}

	written := encoded.BodyOffset + int64(len(body))
	s.mu.Lock()
	s.approximateSize += written - previousSize
	if s.approximateSize < 0 {
		s.approximateSize = 0
	}
	s.mu.Unlock()
	return nil
}

// performHeaderUpdate rewrites newEntry's header in place when its
// page-rounded on-disk size matches the existing entry's, avoiding a
// rewrite of the (possibly large) body. Any mismatch -- a different body
// size, a missing file, a decode failure -- falls back to a full rewrite.
func (s *Storage) performHeaderUpdate(existing, newEntry Entry) error {
	path := fsutil.FilePath(s.versionRoot, existing.Key.Partition, existing.Key.Hash)

	ch, err := iochan.Open(path, iochan.ModeWrite)
	if err != nil {
		return s.performFullWrite(newEntry)
	}
	defer ch.Close()

	prefix, err := ch.ReadAt(0, entryio.TraverseHeaderReadSize)
	if err != nil {
		return s.performFullWrite(newEntry)
	}
	oldMeta, ok := entryio.DecodeMetaData(prefix, pageSize)
	if !ok {
		return s.performFullWrite(newEntry)
	}

	if uint64(newEntry.Body.Size()) != oldMeta.BodySize {
		return s.performFullWrite(newEntry)
	}

	newHeader := newEntry.Header.Bytes()
	bodyChecksum := newEntry.Body.Digest()
	encoded := entryio.EncodeHeader(currentVersion, newEntry.Key.Partition, newEntry.Key.Hash, newEntry.Timestamp.UnixMilli(), newHeader, bodyChecksum, oldMeta.BodySize, pageSize)

	if encoded.BodyOffset != oldMeta.BodyOffset {
		return s.performFullWrite(newEntry)
	}

	return ch.WriteAt(0, encoded.Bytes)
}

// runShrinkPass sweeps every entry exactly once, deleting each
// independently with probability deletionProbability, and rebuilds
// approximateSize from exactly the files that survive -- mirroring
// NetworkCacheStorage::shrink, which zeroes m_approximateSize before the
// walk and re-accumulates it from the kept files rather than trusting the
// incremental counter, which can drift under concurrent writes. Unlike a
// budget-driven early exit, every file gets its eviction roll regardless
// of how much has already been freed. It runs on the background pool, off
// any caller's Store/Retrieve path.
func (s *Storage) runShrinkPass() {
	defer func() {
		s.mu.Lock()
		s.shrinkInProgress = false
		s.mu.Unlock()
	}()

	s.mu.Lock()
	p := s.deletionProbability
	s.approximateSize = 0
	s.mu.Unlock()

	var kept int64
	_ = fsutil.Traverse(s.versionRoot, func(f fsutil.EntryFile) error {
		s.mu.Lock()
		roll := s.rng.Float64()
		s.mu.Unlock()

		if roll >= p {
			kept += f.Size
			return nil
		}

		if err := os.Remove(f.Path); err != nil {
			kept += f.Size
			return nil
		}
		hash, err := StringToHash(filepath.Base(f.Path))
		if err == nil {
			if key, err := NewKey(f.Partition, hash); err == nil {
				s.mu.Lock()
				s.contentsFilter.Remove(key.ShortHash())
				s.mu.Unlock()
			}
		}
		return nil
	})

	s.mu.Lock()
	s.approximateSize = kept
	s.mu.Unlock()

	partitions, err := fsutil.Partitions(s.versionRoot)
	if err != nil {
		return
	}
	for _, partition := range partitions {
		_ = fsutil.RemoveEmptyDirectory(filepath.Join(s.versionRoot, partition))
	}
}
