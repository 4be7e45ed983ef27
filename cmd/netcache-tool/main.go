// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command netcache-tool is an operator CLI for inspecting and managing a
// netcache storage directory: reporting its approximate size, imposing a
// size budget, clearing it, or listing its entries.
package main

import (
	"os"

	"github.com/nblair/netcache/cmd/netcache-tool/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
