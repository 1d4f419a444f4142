// Package config handles loading and saving canopy configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config: ~/.config/canopy/config.yaml
//
// Missing files are not an error; defaults apply and unset fields merge
// over them, so a config file only needs the keys it changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// UIConfig holds UI preference settings.
type UIConfig struct {
	Theme      string  `yaml:"theme,omitempty"`       // dark, light
	SplitRatio float64 `yaml:"split_ratio,omitempty"` // tree pane share of the width (0.2-0.8)
}

// ExplorerConfig tunes the explorer's data handling.
type ExplorerConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms,omitempty"` // cursor poll cadence
	ValueWindow    int `yaml:"value_window,omitempty"`     // elements shown by a plain value request
	HistBins       int `yaml:"hist_bins,omitempty"`        // default histogram bin count
}

// WatcherConfig controls the on-disk change watcher.
type WatcherConfig struct {
	Disabled     bool `yaml:"disabled,omitempty"`
	ForcePolling bool `yaml:"force_polling,omitempty"` // skip fsnotify even on local filesystems
	DebounceMS   int  `yaml:"debounce_ms,omitempty"`
}

// SnapshotConfig sizes exported plot images.
type SnapshotConfig struct {
	Width  int `yaml:"width,omitempty"`  // pixels
	Height int `yaml:"height,omitempty"` // pixels
}

// Config is the top-level configuration for canopy.
type Config struct {
	UI       UIConfig       `yaml:"ui,omitempty"`
	Explorer ExplorerConfig `yaml:"explorer,omitempty"`
	Watcher  WatcherConfig  `yaml:"watcher,omitempty"`
	Snapshot SnapshotConfig `yaml:"snapshot,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UI: UIConfig{
			Theme:      "dark",
			SplitRatio: 0.45,
		},
		Explorer: ExplorerConfig{
			PollIntervalMS: 100,
			ValueWindow:    100,
			HistBins:       30,
		},
		Watcher: WatcherConfig{
			DebounceMS: 400,
		},
		Snapshot: SnapshotConfig{
			Width:  1024,
			Height: 640,
		},
	}
}

// ConfigDir returns the XDG config directory for canopy.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "canopy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "canopy")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.clamp()
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// clamp pulls out-of-range values back to usable ones. A config file with
// a zero or wild value should degrade to the default, not break the UI.
func (c *Config) clamp() {
	if c.UI.SplitRatio < 0.2 || c.UI.SplitRatio > 0.8 {
		c.UI.SplitRatio = DefaultConfig().UI.SplitRatio
	}
	if c.Explorer.PollIntervalMS < 25 {
		c.Explorer.PollIntervalMS = 25
	}
	if c.Explorer.ValueWindow < 1 {
		c.Explorer.ValueWindow = DefaultConfig().Explorer.ValueWindow
	}
	if c.Explorer.HistBins < 1 {
		c.Explorer.HistBins = DefaultConfig().Explorer.HistBins
	}
	if c.Watcher.DebounceMS < 1 {
		c.Watcher.DebounceMS = DefaultConfig().Watcher.DebounceMS
	}
	if c.Snapshot.Width < 64 || c.Snapshot.Height < 64 {
		def := DefaultConfig().Snapshot
		c.Snapshot = def
	}
}

// PollInterval returns the cursor poll cadence as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Explorer.PollIntervalMS) * time.Millisecond
}

// Debounce returns the watcher debounce window as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Watcher.DebounceMS) * time.Millisecond
}
