// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package fsutil builds and walks the on-disk directory layout the
// storage engine uses: baseDirectoryPath/Version N/<partition>/<hex-hash>,
// mirroring the original's directoryPathForKey/fileNameForKey/
// filePathForKey free functions and its salvage/traverse directory walk.
package fsutil

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VersionDirName returns the "Version N" directory name for version.
func VersionDirName(version uint32) string {
	return fmt.Sprintf("Version %d", version)
}

// sanitizePartition replaces path separators in a partition name so it
// can never escape the base directory or collide with a reserved name.
func sanitizePartition(partition string) string {
	if partition == "" {
		partition = "Default"
	}
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "__")
	return r.Replace(partition)
}

// DirectoryPath returns the directory holding entries for partition,
// under versionRoot (baseDirectoryPath/Version N).
func DirectoryPath(versionRoot, partition string) string {
	return filepath.Join(versionRoot, sanitizePartition(partition))
}

// FileName returns the entry file name for hash: its lowercase hex form.
func FileName(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

// FilePath returns the full path to the entry file for (partition, hash)
// under versionRoot.
func FilePath(versionRoot, partition string, hash [32]byte) string {
	return filepath.Join(DirectoryPath(versionRoot, partition), FileName(hash))
}

// EnsureDirectory creates path and any missing parents.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("fsutil: mkdir %s: %w", path, err)
	}
	return nil
}

// RemoveEmptyDirectory removes path if it is empty, silently succeeding
// if it is missing or non-empty -- the caller doesn't care which.
func RemoveEmptyDirectory(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	if pe, ok := err.(*os.PathError); ok && pe.Err.Error() == "directory not empty" {
		return nil
	}
	return fmt.Errorf("fsutil: remove %s: %w", path, err)
}

// Partitions lists the partition directory names directly under
// versionRoot, for callers that fan work out per partition (Storage.Clear,
// the shrink loop's empty-directory cleanup). A missing versionRoot yields
// no partitions rather than an error.
func Partitions(versionRoot string) ([]string, error) {
	entries, err := os.ReadDir(versionRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsutil: read %s: %w", versionRoot, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// EntryFile describes one file found by Traverse.
type EntryFile struct {
	Path      string
	Partition string
	Size      int64
	ModTime   int64
}

// Traverse walks versionRoot's partition subdirectories and invokes fn for
// every regular file found, matching the original's flat, one-level-deep
// directory sweep (partition directory containing entry files directly,
// no further nesting).
func Traverse(versionRoot string, fn func(EntryFile) error) error {
	partitionDirs, err := os.ReadDir(versionRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fsutil: read %s: %w", versionRoot, err)
	}

	for _, pd := range partitionDirs {
		if !pd.IsDir() {
			continue
		}
		partitionPath := filepath.Join(versionRoot, pd.Name())
		files, err := os.ReadDir(partitionPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if err := fn(EntryFile{
				Path:      filepath.Join(partitionPath, f.Name()),
				Partition: pd.Name(),
				Size:      info.Size(),
				ModTime:   info.ModTime().UnixMilli(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
