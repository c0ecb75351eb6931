package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"rowsync/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the offline cache",
	Long: `Inspect and manage the offline cache directly, without a relay.

The cache is the secondary mirror the client writes alongside its
in-memory state: values stored under "<prefix>-<id>" composite keys
with a separately persisted index of known ids.`,
}

// openCache opens the configured cache for a subcommand.
func openCache() *cache.Cache {
	settings, err := resolveSettings()
	if err != nil {
		fatal(err)
	}
	store, err := cache.Open(settings.CacheDir, settings.CachePrefix)
	if err != nil {
		fatal(err)
	}
	return store
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every cached entry",
	Run: func(cmd *cobra.Command, args []string) {
		store := openCache()
		defer store.Close()

		entries, err := store.All()
		if err != nil {
			fatal(err)
		}

		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			fmt.Printf("%s\t%s\n", id, entries[id])
		}
		fmt.Fprintf(os.Stderr, "%d entries\n", len(ids))
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one cached value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openCache()
		defer store.Close()

		value, err := store.Get(args[0])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s\n", value)
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove one cached entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openCache()
		defer store.Close()

		if err := store.Remove(args[0]); err != nil {
			fatal(err)
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached entry and the index",
	Run: func(cmd *cobra.Command, args []string) {
		store := openCache()
		defer store.Close()

		if err := store.Clear(); err != nil {
			fatal(err)
		}
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the cache as JSONL",
	Long: `Export every cached entry as JSON Lines, one {"id", "value"} object
per line, to stdout or --out.`,
	Run: func(cmd *cobra.Command, args []string) {
		outPath, _ := cmd.Flags().GetString("out")

		store := openCache()
		defer store.Close()

		entries, err := store.All()
		if err != nil {
			fatal(err)
		}

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				fatal(fmt.Errorf("failed to create %s: %w", outPath, err))
			}
			defer f.Close()
			out = f
		}

		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w := bufio.NewWriter(out)
		enc := json.NewEncoder(w)
		for _, id := range ids {
			value := entries[id]
			raw := json.RawMessage(value)
			if !json.Valid(value) {
				raw = json.RawMessage(strconv.Quote(string(value)))
			}
			if err := enc.Encode(map[string]json.RawMessage{
				"id":    json.RawMessage(strconv.Quote(id)),
				"value": raw,
			}); err != nil {
				fatal(err)
			}
		}
		if err := w.Flush(); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "exported %d entries\n", len(ids))
	},
}

func init() {
	cacheExportCmd.Flags().String("out", "", "write to a file instead of stdout")
	cacheCmd.AddCommand(cacheListCmd, cacheGetCmd, cacheRemoveCmd, cacheClearCmd, cacheExportCmd)
	rootCmd.AddCommand(cacheCmd)
}
