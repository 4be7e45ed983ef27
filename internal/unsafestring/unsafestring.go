// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package unsafestring lets the entry metadata encoder hash and append a
// partition string without the allocation []byte(s) would cost -- every
// Store call otherwise pays that copy just to feed the partition into a
// checksum and a write buffer that immediately copies it again.
package unsafestring

import "unsafe"

// ToBytes returns a byte slice referring to the contents of s. The
// returned slice must never be written to, only read: strings are
// immutable and the runtime may share their backing storage.
func ToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
