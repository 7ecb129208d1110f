package config

import (
	"time"

	redisclient "github.com/boucer/prospek360-recovery-engine/internal/infra/redis"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Autopilot AutopilotConfig    `yaml:"autopilot"`
	Retention RetentionConfig    `yaml:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AutopilotConfig holds orchestrator and lifecycle settings.
type AutopilotConfig struct {
	LockTTL            time.Duration `yaml:"lock_ttl"`             // default 60s
	LogCapacity        int           `yaml:"log_capacity"`         // entries kept per finding, default 200
	UndoWindow         time.Duration `yaml:"undo_window"`          // default 5m
	CloseAfterFallback *bool         `yaml:"close_after_fallback"` // default true
	LeverMaxLimit      int           `yaml:"lever_max_limit"`      // default 100
}

// ShouldCloseAfterFallback reports whether a fallback run closes the finding.
func (c AutopilotConfig) ShouldCloseAfterFallback() bool {
	return c.CloseAfterFallback == nil || *c.CloseAfterFallback
}

// RetentionConfig controls pruning of the durable action log.
type RetentionConfig struct {
	ActionLog     time.Duration `yaml:"action_log"`     // 0 = keep forever
	PruneInterval time.Duration `yaml:"prune_interval"` // 0 = derived from ActionLog
}
