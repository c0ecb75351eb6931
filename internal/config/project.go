package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ProjectFileName is the per-project settings file, discovered by
// walking up from the working directory.
const ProjectFileName = ".rowsync.toml"

// Project mirrors the .rowsync.toml file. Zero values mean "not set";
// anything set here sits below flags and environment in precedence.
type Project struct {
	URL         string       `toml:"url"`
	CacheDir    string       `toml:"cache_dir"`
	CachePrefix string       `toml:"cache_prefix"`
	Relay       ProjectRelay `toml:"relay"`
}

// ProjectRelay holds the relay section of the project file.
type ProjectRelay struct {
	Port  int    `toml:"port"`
	Seed  string `toml:"seed"`
	Watch bool   `toml:"watch"`
}

// FindProject walks up from startDir looking for a project file.
func FindProject(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// LoadProject parses a project file. Relative seed paths are resolved
// against the file's directory so the file works from any cwd.
func LoadProject(path string) (*Project, error) {
	var p Project
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if p.Relay.Seed != "" && !filepath.IsAbs(p.Relay.Seed) {
		p.Relay.Seed = filepath.Join(filepath.Dir(path), p.Relay.Seed)
	}
	return &p, nil
}
