// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package netcache

import "time"

// nowUnixMilli is the default clock used for entry timestamps. It's a
// named function stored in storageConfig.now (not inlined at call sites)
// so withClock can swap it out per-Storage in tests without a real sleep.
func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
