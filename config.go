package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/lotas/tabgroupsync/internal/storage"
)

const envPrefix = "TABGROUPSYNC"

// Config is read from TABGROUPSYNC_* variables; command-line flags override it.
type Config struct {
	DataDir      string        `envconfig:"DATA_DIR"`
	DB           string        `envconfig:"DB"`
	MappingDSN   string        `envconfig:"MAPPING_DSN" default:"sqlite:"`
	SyncDir      string        `envconfig:"SYNC_DIR"`
	Port         int           `envconfig:"PORT" default:"19191"`
	MetricsDelay time.Duration `envconfig:"METRICS_DELAY" default:"10s"`
	LoadTimeout  time.Duration `envconfig:"LOAD_TIMEOUT" default:"15s"`
	LogDir       string        `envconfig:"LOG_DIR"`
	DeviceName   string        `envconfig:"DEVICE_NAME"`
}

// loadConfig processes the environment and fills path defaults from the
// data directory.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.fillDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() error {
	if c.DataDir == "" {
		dir, err := storage.DefaultDataDir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	if c.DB == "" {
		c.DB = filepath.Join(c.DataDir, "tabgroupsync.db")
	}
	if c.LogDir == "" {
		c.LogDir = c.DataDir
	}
	return nil
}
