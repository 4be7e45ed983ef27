// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry in the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := openStorage()
		defer s.Close()
		if err := s.Clear(context.Background()); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	},
}
