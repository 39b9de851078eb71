// SPDX-License-Identifier: Apache-2.0
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"oath/internal/vcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the verification cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show where the cache lives and how many results it holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cache, err := openFileCache()
		if err != nil {
			return err
		}
		fmt.Printf("verification cache: %s\n", dir)
		fmt.Printf("%s stored\n", plural(cache.Stats().Entries, "function result"))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached verification result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cache, err := openFileCache()
		if err != nil {
			return err
		}
		entries := cache.Stats().Entries
		if err := cache.Clear(); err != nil {
			return fmt.Errorf("clearing %s: %w", dir, err)
		}
		fmt.Printf("cleared %s\n", plural(entries, "function result"))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openFileCache() (string, *vcache.Cache, error) {
	dir, err := vcache.DefaultDir()
	if err != nil {
		return "", nil, fmt.Errorf("locating the cache directory: %w", err)
	}
	cache, err := vcache.NewFileCache(dir)
	if err != nil {
		return "", nil, fmt.Errorf("opening %s: %w", dir, err)
	}
	return dir, cache, nil
}
