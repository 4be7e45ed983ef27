// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import "errors"

// ErrNotFound is returned by Retrieve when no live entry exists for a key.
// A corrupt, truncated, or wrong-version entry on disk is reported the
// same way: from a caller's perspective a damaged entry and a missing one
// both mean "go fetch it from the network again".
var ErrNotFound = errors.New("netcache: entry not found")

// ErrClosed is returned by Retrieve, Store, Update, and Clear when called
// after Close.
var ErrClosed = errors.New("netcache: storage is closed")

// ErrInvalidKey is returned when a Key's partition or hash fails
// validation.
var ErrInvalidKey = errors.New("netcache: invalid key")

// ErrCacheDisabled is returned by Store and Update when the Storage's
// maximum size is 0: the cache is disabled, so nothing is written to disk.
var ErrCacheDisabled = errors.New("netcache: cache disabled (maximum size is 0)")

// errCorruptEntry is the internal sentinel wrapped around any decode or
// checksum failure encountered while reading an entry file. It never
// escapes the package: performRead maps it to ErrNotFound after logging
// and scheduling the offending file for removal.
var errCorruptEntry = errors.New("netcache: corrupt entry")

// errStopTraverse is returned internally by Traverse's visitor to unwind
// fsutil.Traverse's walk early without treating early stop as a failure.
var errStopTraverse = errors.New("netcache: traverse stopped")
