package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rowsync/internal/config"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

var vp = viper.New()

var rootCmd = &cobra.Command{
	Use:     "rowsync",
	Short:   "Optimistic entity synchronization client and reference relay",
	Version: version,
	Long: `rowsync keeps a local mirror of a shared entity table convergent with a
remote relay: local edits apply immediately and reconcile against the
relay's broadcast stream, while an indexed on-disk cache holds the
offline mirror.

Settings resolve from flags, ROWSYNC_* environment variables, the
nearest .rowsync.toml, then built-in defaults.`,
}

func init() {
	rootCmd.PersistentFlags().String("url", "", "relay address (default ws://127.0.0.1:8787)")
	rootCmd.PersistentFlags().String("cache-dir", "", "offline cache directory (default .rowsync-cache)")
	rootCmd.PersistentFlags().String("cache-prefix", "", "offline cache key prefix (default users)")

	vp.SetEnvPrefix("ROWSYNC")
	vp.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vp.AutomaticEnv()

	for _, name := range []string{"url", "cache-dir", "cache-prefix"} {
		if err := vp.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// resolveSettings merges all configuration layers for the current
// working directory.
func resolveSettings() (config.Settings, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to determine working directory: %w", err)
	}
	return config.Resolve(vp, wd)
}

// fatal prints the error and exits. Commands call it instead of
// returning errors so usage text is not reprinted on runtime failures.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
