// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var versionDirPattern = regexp.MustCompile(`^Version \d+$`)

// DeleteOldVersions removes every sibling of currentVersionDir under
// baseDirectoryPath whose name does NOT look like a "Version N" directory.
// It deliberately leaves other version directories alone: an older or
// newer version directory belongs to another process or a rollback, not
// stray cruft, and only a name that never matched the version-directory
// convention in the first place is safe to delete unconditionally.
func DeleteOldVersions(baseDirectoryPath, currentVersionDir string) error {
	entries, err := os.ReadDir(baseDirectoryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fsutil: read %s: %w", baseDirectoryPath, err)
	}

	currentName := filepath.Base(currentVersionDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() == currentName {
			continue
		}
		if versionDirPattern.MatchString(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(baseDirectoryPath, e.Name())); err != nil {
			return fmt.Errorf("fsutil: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
