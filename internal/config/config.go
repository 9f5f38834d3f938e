package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	DataDir  string `koanf:"data_dir"`  // empty means XDG data dir
	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"` // empty means stderr

	// Autoplay starts the next queued episode after one completes.
	Autoplay bool `koanf:"autoplay"`

	SkipForwardSecs  int `koanf:"skip_forward_secs"`  // default: 30
	SkipBackwardSecs int `koanf:"skip_backward_secs"` // default: 15

	Checkpoint CheckpointConfig `koanf:"checkpoint"`
}

// CheckpointConfig tunes position persistence during playback.
type CheckpointConfig struct {
	TickSecs             int `koanf:"tick_secs"`               // engine clock interval (default: 1)
	BackgroundTickSecs   int `koanf:"background_tick_secs"`    // clock interval when backgrounded (default: 3)
	MinWriteIntervalSecs int `koanf:"min_write_interval_secs"` // durable write floor (default: 2)
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{
		Autoplay: true,
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.DataDir != "" {
		cfg.DataDir = expandPath(cfg.DataDir)
	}
	if cfg.LogFile != "" {
		cfg.LogFile = expandPath(cfg.LogFile)
	}

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/earshot/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "earshot", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetSkipForwardSecs returns the skip-forward interval with defaults applied.
func (c *Config) GetSkipForwardSecs() int {
	if c.SkipForwardSecs <= 0 {
		return 30
	}
	return c.SkipForwardSecs
}

// GetSkipBackwardSecs returns the skip-backward interval with defaults applied.
func (c *Config) GetSkipBackwardSecs() int {
	if c.SkipBackwardSecs <= 0 {
		return 15
	}
	return c.SkipBackwardSecs
}

// GetCheckpoint returns the checkpoint configuration with defaults applied.
func (c *Config) GetCheckpoint() CheckpointConfig {
	cp := c.Checkpoint
	if cp.TickSecs <= 0 {
		cp.TickSecs = 1
	}
	if cp.BackgroundTickSecs <= 0 {
		cp.BackgroundTickSecs = 3
	}
	if cp.MinWriteIntervalSecs <= 0 {
		cp.MinWriteIntervalSecs = 2
	}
	return cp
}
