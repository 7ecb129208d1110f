package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. A missing file yields the
// defaults, so the service can run in memory mode without any config.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Autopilot.LockTTL == 0 {
		cfg.Autopilot.LockTTL = 60 * time.Second
	}
	if cfg.Autopilot.LogCapacity == 0 {
		cfg.Autopilot.LogCapacity = 200
	}
	if cfg.Autopilot.UndoWindow == 0 {
		cfg.Autopilot.UndoWindow = 5 * time.Minute
	}
	if cfg.Autopilot.LeverMaxLimit == 0 {
		cfg.Autopilot.LeverMaxLimit = 100
	}
	if cfg.Retention.ActionLog > 0 && cfg.Retention.PruneInterval == 0 {
		// 10% of the retention period, between 1m and 1h
		interval := min(cfg.Retention.ActionLog/10, time.Hour)
		cfg.Retention.PruneInterval = max(interval, time.Minute)
	}
}

func (c *AppConfig) validate() error {
	switch {
	case c.Autopilot.LockTTL < 0:
		return fmt.Errorf("invalid config: autopilot.lock_ttl must be positive")
	case c.Autopilot.LogCapacity < 0:
		return fmt.Errorf("invalid config: autopilot.log_capacity must be positive")
	case c.Autopilot.UndoWindow < 0:
		return fmt.Errorf("invalid config: autopilot.undo_window must be positive")
	case c.Autopilot.LeverMaxLimit < 0:
		return fmt.Errorf("invalid config: autopilot.lever_max_limit must be positive")
	case c.Retention.ActionLog < 0:
		return fmt.Errorf("invalid config: retention.action_log must be positive")
	}
	return nil
}
