// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package commands implements the netcache-tool subcommands. This is an
// operator's tool for inspecting and managing a cache directory from the
// outside; it exercises the same public Storage API an embedding program
// would use, it just isn't part of the storage engine itself.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nblair/netcache"
)

// RootCmd is the entry point cmd/netcache-tool/main.go executes.
var RootCmd = &cobra.Command{
	Use:   "netcache-tool",
	Short: "Inspect and manage a netcache storage directory",
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().String("dir", "", "path to the cache's base directory (required)")
	RootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	_ = viper.BindPFlag("dir", RootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("verbose", RootCmd.PersistentFlags().Lookup("verbose"))

	RootCmd.AddCommand(statsCmd, gcCmd, clearCmd, traverseCmd)
}

func initConfig() {
	viper.SetEnvPrefix("NETCACHE")
	viper.AutomaticEnv()
}

// openStorage opens the Storage named by the --dir flag / NETCACHE_DIR
// environment variable, exiting the process on failure the way a small
// operator CLI is expected to.
func openStorage(opts ...netcache.StorageOption) *netcache.Storage {
	dir := viper.GetString("dir")
	if dir == "" {
		cobra.CheckErr("a --dir (or NETCACHE_DIR) is required")
	}

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := netcache.Open(dir, append(opts, netcache.WithLogger(logger))...)
	if err != nil {
		cobra.CheckErr(err)
	}
	return s
}
