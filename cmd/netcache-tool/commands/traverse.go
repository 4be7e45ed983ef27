// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nblair/netcache"
)

var traverseLimit int

var traverseCmd = &cobra.Command{
	Use:   "traverse",
	Short: "List entries currently on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := openStorage()
		defer s.Close()

		count := 0
		err := s.Traverse(context.Background(), func(e netcache.Entry) bool {
			fmt.Printf("%s/%s\theader=%dB\tbody=%dB\t%s\n",
				e.Key.Partition, e.Key.HashString(), e.Header.Size(), e.Body.Size(), e.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
			count++
			return traverseLimit <= 0 || count < traverseLimit
		})
		if err != nil {
			return err
		}
		fmt.Printf("%d entries\n", count)
		return nil
	},
}

func init() {
	traverseCmd.Flags().IntVar(&traverseLimit, "limit", 0, "stop after this many entries (0 means no limit)")
}
