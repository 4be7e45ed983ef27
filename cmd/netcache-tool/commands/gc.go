// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nblair/netcache"
)

var gcMaxBytes int64

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Impose a size budget, triggering eviction if the cache exceeds it",
	Run: func(cmd *cobra.Command, args []string) {
		s := netcacheOpenForGC()
		defer s.Close()
		before := s.ApproximateSize()
		s.SetMaximumSize(gcMaxBytes)
		if gcMaxBytes == 0 {
			fmt.Println("size before:", before, "bytes; cache now disabled (max-bytes=0)")
			return
		}
		fmt.Printf("size before: %d bytes, budget: %d bytes\n", before, gcMaxBytes)
	},
}

func init() {
	// max-bytes has no safe default: 0 disables the cache outright rather
	// than meaning "unbounded", so an operator must say so explicitly.
	gcCmd.Flags().Int64Var(&gcMaxBytes, "max-bytes", 0, "maximum total size in bytes (0 disables the cache); if the cache exceeds it, one background pass evicts each entry at random")
	_ = gcCmd.MarkFlagRequired("max-bytes")
}

func netcacheOpenForGC() *netcache.Storage {
	return openStorage()
}
