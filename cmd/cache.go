/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and prune the model and search cache",
	Long: `Model replies, search results and fetched web pages are cached in the
index so repeated requests are cheaper. The cache is shared by every task.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := openIndex()
		if err != nil {
			return err
		}
		defer func() { _ = index.Close() }()

		counts := make(map[string]int)
		for _, name := range []string{cache.NameLLM, cache.NameSearch, cache.NameWebPage, ""} {
			n, err := index.CountCache(name)
			if err != nil {
				return err
			}
			key := name
			if key == "" {
				key = "total"
			}
			counts[key] = n
		}
		if isJSON() {
			return printJSON(counts)
		}
		cmd.Printf("llm:      %d\n", counts[cache.NameLLM])
		cmd.Printf("search:   %d\n", counts[cache.NameSearch])
		cmd.Printf("web_page: %d\n", counts[cache.NameWebPage])
		cmd.Printf("total:    %d\n", counts["total"])
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cache entries older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age < 0 {
			return fmt.Errorf("--older-than must not be negative")
		}
		index, err := openIndex()
		if err != nil {
			return err
		}
		defer func() { _ = index.Close() }()

		n, err := index.PruneCache(time.Now().Add(-age))
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(map[string]any{"deleted": n})
		}
		cmd.Printf("✓ Deleted %d cache entries\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd)
	cachePruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "age of entries to delete; 0 deletes everything")
}

func openIndex() (*store.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	index, err := store.NewSQLiteStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return index, nil
}
