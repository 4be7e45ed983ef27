// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the cache's approximate size",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStorage()
		defer s.Close()
		fmt.Printf("approximate size: %d bytes\n", s.ApproximateSize())
	},
}
