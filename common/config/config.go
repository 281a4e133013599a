package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds engine-wide tunables for a LexFlow process.
type Config struct {
	Service  ServiceConfig
	Runtime  RuntimeConfig
	Channel  ChannelConfig
	Features FeatureFlags
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Name      string
	LogLevel  string
	LogFormat string
}

// RuntimeConfig holds the call-depth limit enforced by internal/workflowmgr
// and the default await timeout handed to internal/taskmanager.
type RuntimeConfig struct {
	MaxCallDepth     int
	DefaultTaskAwait time.Duration
}

// ChannelConfig holds defaults used when a Channel is constructed without an
// explicit capacity.
type ChannelConfig struct {
	DefaultCapacity int
}

// FeatureFlags toggles optional engine behavior.
type FeatureFlags struct {
	EnableMetrics bool
}

// Load loads configuration from environment variables, falling back to
// defaults suitable for the spec's concrete scenarios (spec.md §8).
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:      serviceName,
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "text"),
		},
		Runtime: RuntimeConfig{
			MaxCallDepth:     getEnvInt("LEXFLOW_MAX_CALL_DEPTH", 1024),
			DefaultTaskAwait: getEnvDuration("LEXFLOW_DEFAULT_TASK_AWAIT", 30*time.Second),
		},
		Channel: ChannelConfig{
			DefaultCapacity: getEnvInt("LEXFLOW_DEFAULT_CHANNEL_CAPACITY", 0),
		},
		Features: FeatureFlags{
			EnableMetrics: getEnvBool("LEXFLOW_ENABLE_METRICS", true),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Runtime.MaxCallDepth <= 0 {
		return fmt.Errorf("config: max call depth must be > 0, got %d", c.Runtime.MaxCallDepth)
	}
	if c.Channel.DefaultCapacity < 0 {
		return fmt.Errorf("config: default channel capacity must be >= 0, got %d", c.Channel.DefaultCapacity)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
