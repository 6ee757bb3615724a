package config

import (
	"time"

	"github.com/vietddude/rescue/internal/infra/ai"
	redisclient "github.com/vietddude/rescue/internal/infra/redis"
	"github.com/vietddude/rescue/internal/infra/storage/postgres"
	"github.com/vietddude/rescue/internal/recovery"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Recovery recovery.Config    `yaml:"recovery"`
	Health   HealthConfig       `yaml:"health"`
	Events   EventsConfig       `yaml:"events"`
	Redis    redisclient.Config `yaml:"redis"`
	Archive  ArchiveConfig      `yaml:"archive"`
	AI       ai.Config          `yaml:"ai"`
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

// HealthConfig holds thresholds for the health monitor.
type HealthConfig struct {
	DegradedUnresolved int           `yaml:"degraded_unresolved"` // unresolved records before degraded
	CriticalUnresolved int           `yaml:"critical_unresolved"` // unresolved records before critical
	CheckInterval      time.Duration `yaml:"check_interval"`
}

// EventsConfig controls event delivery.
type EventsConfig struct {
	Log       bool `yaml:"log"`        // write events to the application log
	Publish   bool `yaml:"publish"`    // publish events on the redis channel
	QueueSize int  `yaml:"queue_size"` // async queue per sink
}

// ArchiveConfig selects where swept error records are kept.
type ArchiveConfig struct {
	Driver   string          `yaml:"driver"` // postgres, bolt, memory or empty to disable
	Path     string          `yaml:"path"`   // bolt file
	Postgres postgres.Config `yaml:"postgres"`
}
