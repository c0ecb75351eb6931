// Package config resolves command settings across four layers: explicit
// flags, ROWSYNC_* environment variables, the nearest .rowsync.toml
// project file, and built-in defaults. Flags and environment win via
// viper; project values are injected below them.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Settings is the resolved configuration a command runs with.
type Settings struct {
	// URL is the relay base address the client and bench connect to.
	URL string

	// CacheDir holds the offline mirror store. CachePrefix scopes its
	// composite keys.
	CacheDir    string
	CachePrefix string

	// RelayPort, Seed and Watch configure the serve command.
	RelayPort int
	Seed      string
	Watch     bool

	// LogFile, when set, sends serve logs to a rotating file.
	LogFile string
}

// Default returns the built-in settings used when no other layer
// provides a value.
func Default() Settings {
	return Settings{
		URL:         "ws://127.0.0.1:8787",
		CacheDir:    ".rowsync-cache",
		CachePrefix: "users",
		RelayPort:   8787,
	}
}

// Resolve layers the nearest project file (found by walking up from
// startDir) and the built-in defaults underneath whatever flags and
// environment the given viper already carries.
func Resolve(v *viper.Viper, startDir string) (Settings, error) {
	d := Default()
	v.SetDefault("url", d.URL)
	v.SetDefault("cache-dir", d.CacheDir)
	v.SetDefault("cache-prefix", d.CachePrefix)
	v.SetDefault("port", d.RelayPort)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("log-file", d.LogFile)

	if path, ok := FindProject(startDir); ok {
		p, err := LoadProject(path)
		if err != nil {
			return Settings{}, fmt.Errorf("project config: %w", err)
		}
		if p.URL != "" {
			v.SetDefault("url", p.URL)
		}
		if p.CacheDir != "" {
			v.SetDefault("cache-dir", p.CacheDir)
		}
		if p.CachePrefix != "" {
			v.SetDefault("cache-prefix", p.CachePrefix)
		}
		if p.Relay.Port != 0 {
			v.SetDefault("port", p.Relay.Port)
		}
		if p.Relay.Seed != "" {
			v.SetDefault("seed", p.Relay.Seed)
		}
		if p.Relay.Watch {
			v.SetDefault("watch", true)
		}
	}

	return Settings{
		URL:         v.GetString("url"),
		CacheDir:    v.GetString("cache-dir"),
		CachePrefix: v.GetString("cache-prefix"),
		RelayPort:   v.GetInt("port"),
		Seed:        v.GetString("seed"),
		Watch:       v.GetBool("watch"),
		LogFile:     v.GetString("log-file"),
	}, nil
}
