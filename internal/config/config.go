package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/jordanhubbard/counsel/internal/analyzer"
	"github.com/jordanhubbard/counsel/internal/cache"
	"github.com/jordanhubbard/counsel/internal/eventbus"
	"github.com/jordanhubbard/counsel/internal/memory"
	"github.com/jordanhubbard/counsel/internal/orchestrator"
)

// ServerConfig holds the HTTP boundary configuration.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// RedisConfig enables the shared Redis cache backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig enables durable pattern/analytics/context stores.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// NATSConfig enables task lifecycle event publishing.
type NATSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	StreamName string `yaml:"stream_name"`
}

// Bus converts to the event bus configuration.
func (n NATSConfig) Bus() eventbus.Config {
	return eventbus.Config{URL: n.URL, StreamName: n.StreamName}
}

// TelemetryConfig enables OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Engine     orchestrator.Config `yaml:"engine"`
	Thresholds analyzer.Thresholds `yaml:"thresholds"`
	Cache      cache.Config        `yaml:"cache"`
	Memory     memory.Config       `yaml:"memory"`
	Redis      RedisConfig         `yaml:"redis"`
	Postgres   PostgresConfig      `yaml:"postgres"`
	NATS       NATSConfig          `yaml:"nats"`
	Telemetry  TelemetryConfig     `yaml:"telemetry"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server:     ServerConfig{Addr: ":8080"},
		Engine:     orchestrator.DefaultConfig(),
		Thresholds: analyzer.DefaultThresholds(),
		Cache:      *cache.DefaultConfig(),
		Memory:     memory.DefaultConfig(),
		Redis:      RedisConfig{Addr: "localhost:6379"},
		NATS:       NATSConfig{URL: "nats://localhost:4222"},
		Telemetry:  TelemetryConfig{Endpoint: "localhost:4317"},
	}
}

// Load builds the configuration: defaults, then the YAML file (if any),
// then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("COUNSEL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("COUNSEL_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("COUNSEL_ENVIRONMENT"); v != "" {
		c.Engine.Environment = v
	}
	if v := os.Getenv("COUNSEL_REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := os.Getenv("COUNSEL_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("COUNSEL_POSTGRES_DSN"); v != "" {
		c.Postgres.Enabled = true
		c.Postgres.DSN = v
	}
	if v := os.Getenv("COUNSEL_NATS_URL"); v != "" {
		c.NATS.Enabled = true
		c.NATS.URL = v
	}
	if v := os.Getenv("COUNSEL_OTEL_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
}

func (c *Config) validate() error {
	t := c.Thresholds
	if !(t.Direct > 0 && t.Direct < t.Tier1 && t.Tier1 < t.Tier2 && t.Tier2 < 10) {
		return fmt.Errorf("tier thresholds must satisfy 0 < direct < tier1 < tier2 < 10, got %+v", t)
	}
	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %.2f", c.Memory.SimilarityThreshold)
	}
	return nil
}

// ThresholdTuner is the slice of the analyzer the watcher updates.
type ThresholdTuner interface {
	SetThresholds(analyzer.Thresholds)
}

// WatchThresholds hot-reloads the tier thresholds when the config file
// changes. Other settings require a restart. The returned stop function
// closes the watcher.
func WatchThresholds(path string, tuner ThresholdTuner) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Printf("[Config] Ignoring invalid config update: %v", err)
					continue
				}
				tuner.SetThresholds(cfg.Thresholds)
				log.Printf("[Config] Reloaded tier thresholds: %+v", cfg.Thresholds)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Config] Watcher error: %v", err)
			}
		}
	}()

	return watcher.Close, nil
}
