package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helix-research/pipeline-cli/internal/cache"
)

var cacheClearURL string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the on-disk content cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached page content",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cache.New(cfg.Cache.Dir, cache.WithTTL(cfg.Cache.TTL()))

		if cacheClearURL != "" {
			removed := store.Clear(cacheClearURL)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entry\n", removed)
			return nil
		}

		removed, err := store.ClearAll()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries\n", removed)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearURL, "url", "", "clear only the entry for this URL")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
