// Package config loads the optional pesadb.toml settings file for the
// CLI. Flags take precedence over the file; the file takes precedence
// over defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the CLI settings.
type Config struct {
	// DataDir is the root directory for catalog metadata and database
	// snapshots.
	DataDir string `toml:"data_dir"`
	// Database is the database selected on startup; empty means none.
	Database string `toml:"database"`
	// Audit toggles the JSON-lines audit trail.
	Audit bool `toml:"audit"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir: "data",
		Audit:   true,
	}
}

// Load reads path over the defaults. A missing file is not an error and
// yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %q: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = Default().DataDir
	}
	return cfg, nil
}
