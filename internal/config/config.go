// Package config loads and persists the miner's TOML configuration file:
// pool endpoints and credentials, ASIC model and serial device, frequency,
// nonce policy and settings database path (spec §6 external interfaces).
// Job cadence is not part of it; it comes from the ASIC model's constants.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

// PoolConfig names one stratum endpoint and its credentials.
type PoolConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// Config is the miner's full on-disk configuration.
type Config struct {
	Primary  PoolConfig `toml:"primary_pool"`
	Fallback PoolConfig `toml:"fallback_pool"`

	UserAgent           string  `toml:"user_agent"`
	SuggestedDifficulty float64 `toml:"suggested_difficulty"`

	AsicModel  string `toml:"asic_model"`
	SerialPort string `toml:"serial_port"`

	TargetFrequencyMHz float64 `toml:"target_frequency_mhz"`

	SubrangeSize        uint32 `toml:"subrange_size"`
	RandomStartingNonce bool   `toml:"random_starting_nonce"`
	MaxMidstates        int    `toml:"max_midstates"`

	SettingsDBPath string `toml:"settings_db_path"`
}

// Default returns a Config populated with built-in defaults, used both as
// the base for config loading and for generating a first-run config file.
func Default() Config {
	return Config{
		Primary: PoolConfig{
			Host: "solo.ckpool.org",
			Port: 3333,
		},
		UserAgent:           "ESP-Miner-Matrix/1.0",
		SuggestedDifficulty: 1000,
		AsicModel:           "BM1366",
		SerialPort:          "/dev/ttyUSB0",
		TargetFrequencyMHz:  485.0,
		SubrangeSize:        0,
		RandomStartingNonce: false,
		MaxMidstates:        4,
		SettingsDBPath:      "miner-settings.db",
	}
}

// Load reads path, falling back to Default() plus writing that default out
// if the file does not yet exist (teacher pack's first-run behavior).
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if writeErr := Save(path, cfg); writeErr != nil {
			return cfg, fmt.Errorf("config: write default config: %w", writeErr)
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save atomically rewrites path with cfg: write to a temp file in the same
// directory, fsync, chmod, rotate any existing file to a .bak, then rename
// the temp file into place.
func Save(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	removeTemp := true
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		if removeTemp {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("config: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("config: chmod %s: %w", tmpName, err)
	}

	bakPath := path + ".bak"
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(bakPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: remove %s: %w", bakPath, err)
		}
		if err := os.Rename(path, bakPath); err != nil {
			return fmt.Errorf("config: rename %s to %s: %w", path, bakPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("config: rename %s to %s: %w", tmpName, path, err)
	}
	removeTemp = false
	return nil
}
