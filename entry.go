// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import "time"

// Entry is a single cached HTTP response: the key it was stored under, the
// time it was stored, and its header and body as zero-copy Data.
type Entry struct {
	Key       Key
	Timestamp time.Time
	Header    Data
	Body      Data
}

// IsNull reports whether e is the zero Entry, returned on a cache miss.
func (e Entry) IsNull() bool {
	return e.Key.IsNull() && e.Header.Size() == 0 && e.Body.Size() == 0
}

// readOperation tracks one in-flight Retrieve call: which key it wants,
// and the callbacks waiting on its result. Multiple Retrieve calls for
// the same key that arrive before the first completes share one
// readOperation and are all satisfied by its single disk read.
type readOperation struct {
	key       Key
	priority  int
	callbacks []func(Entry, error)
}

// writeOperation tracks one in-flight Store or Update call. Unlike
// readOperation, calls are never merged: two Store calls racing for the
// same key are two independent writeOperations, queued and dispatched in
// submission order, each reporting back the entry that was actually
// persisted for it.
type writeOperation struct {
	entry         Entry
	existingEntry *Entry
	headerOnly    bool
	callbacks     []func(Entry, error)
}
