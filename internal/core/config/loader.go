package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/rescue/internal/recovery"
)

// Default returns the configuration used when a key is absent from the file.
func Default() AppConfig {
	return AppConfig{
		Server:   ServerConfig{Port: 8080},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Recovery: recovery.DefaultConfig(),
		Health: HealthConfig{
			DegradedUnresolved: 10,
			CriticalUnresolved: 50,
			CheckInterval:      30 * time.Second,
		},
		Events: EventsConfig{Log: true, QueueSize: 1000},
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default.
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Health.CheckInterval <= 0 {
		cfg.Health.CheckInterval = 30 * time.Second
	}
	if cfg.Health.CriticalUnresolved < cfg.Health.DegradedUnresolved {
		cfg.Health.CriticalUnresolved = cfg.Health.DegradedUnresolved
	}
	if cfg.Events.QueueSize <= 0 {
		cfg.Events.QueueSize = 1000
	}
	cfg.Recovery = cfg.Recovery.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *AppConfig) Validate() error {
	switch c.Archive.Driver {
	case "", "memory":
	case "bolt":
		if c.Archive.Path == "" {
			return fmt.Errorf("archive: bolt driver requires a path")
		}
	case "postgres":
		if c.Archive.Postgres.URL == "" {
			return fmt.Errorf("archive: postgres driver requires a url")
		}
		if d := c.Archive.Postgres.Driver; d != "" && d != "postgres" && d != "pgx" {
			return fmt.Errorf("archive: unknown postgres driver %q", d)
		}
	default:
		return fmt.Errorf("archive: unknown driver %q", c.Archive.Driver)
	}
	if c.Events.Publish && c.Redis.URL == "" {
		return fmt.Errorf("events: publish requires redis.url")
	}
	return nil
}
