// Package config loads the client configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/tgienger/tareas/internal/api"
)

// Config holds the settings read from config.yaml
type Config struct {
	APIURL   string `yaml:"api_url,omitempty"`
	DataDir  string `yaml:"data_dir,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		APIURL:   api.DefaultBaseURL,
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
	}
}

// DefaultPath returns the default path for the config file
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tareas", "config.yaml")
}

// DefaultDataDir returns the directory holding the local database and log
func DefaultDataDir() string {
	// Use XDG data directory or fallback to home directory
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "tareas"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "tareas")
}

// Load reads the config from the default path
func Load() (Config, error) {
	return LoadFromPath(DefaultPath())
}

// LoadFromPath reads the config at path. A missing file yields the defaults;
// fields left out of the file keep their default values.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Merge(file)
	return cfg, nil
}

// Merge overrides c with the non-empty fields of o
func (c *Config) Merge(o Config) {
	if o.APIURL != "" {
		c.APIURL = strings.TrimRight(o.APIURL, "/")
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// Level parses LogLevel, falling back to info
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Save writes the config to path
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
