package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rowsync/internal/loadtest"
	"rowsync/internal/logging"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure relay echo latency under concurrent sessions",
	Long: `Benchmark a relay: N concurrent sessions each perform M mutation
round-trips, measuring the time from send to receipt of the session's
own broadcast echo.

Example usage:
  rowsync bench --sessions 50 --mutations 20
  rowsync bench --url ws://host:8787`,
	Run: func(cmd *cobra.Command, args []string) {
		sessions, _ := cmd.Flags().GetInt("sessions")
		mutations, _ := cmd.Flags().GetInt("mutations")
		verbose, _ := cmd.Flags().GetBool("verbose")

		settings, err := resolveSettings()
		if err != nil {
			fatal(err)
		}

		cfg := loadtest.Config{
			URL:       settings.URL,
			Sessions:  sessions,
			Mutations: mutations,
			Timeout:   10 * time.Second,
		}
		if verbose {
			cfg.Logger = logging.New("bench")
		}

		fmt.Printf("Benchmarking %s: %d sessions × %d round-trips...\n", settings.URL, sessions, mutations)
		start := time.Now()
		stats, err := loadtest.Run(cfg)
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Completed in %v\n\n", time.Since(start).Round(time.Millisecond))
		stats.Print(os.Stdout)
		if stats.Errors > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	benchCmd.Flags().Int("sessions", 10, "concurrent client sessions")
	benchCmd.Flags().Int("mutations", 10, "round-trips per session")
	benchCmd.Flags().Bool("verbose", false, "log per-session connection events")
	rootCmd.AddCommand(benchCmd)
}
