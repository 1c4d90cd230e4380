package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// Enabled gates the outbound event mirror. The websocket dispatcher
	// works without a broker; the mirror is for external consumers.
	Enabled bool `yaml:"enabled"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type CacheConfig struct {
	Capacity         int      `yaml:"capacity"`
	QueueTTLSeconds  int      `yaml:"queue_ttl_seconds"`
	StatsTTLSeconds  int      `yaml:"stats_ttl_seconds"`
	PriorityPrefixes []string `yaml:"priority_prefixes"`
}

// RealtimeConfig carries every tunable of the sync core. Durations are
// plain seconds/milliseconds so the file stays diffable across deploys.
type RealtimeConfig struct {
	HeartbeatIntervalSeconds int     `yaml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int     `yaml:"heartbeat_timeout_seconds"`
	DialTimeoutSeconds       int     `yaml:"dial_timeout_seconds"`
	InitialReconnectMillis   int     `yaml:"initial_reconnect_ms"`
	MaxReconnectMillis       int     `yaml:"max_reconnect_ms"`
	BackoffFactor            float64 `yaml:"backoff_factor"`
	JitterFraction           float64 `yaml:"jitter_fraction"`
	MaxConsecutiveFailures   int     `yaml:"max_consecutive_failures"`
	FailurePauseSeconds      int     `yaml:"failure_pause_seconds"`
	MinPollIntervalSeconds   int     `yaml:"min_poll_interval_seconds"`
	MaxPollIntervalSeconds   int     `yaml:"max_poll_interval_seconds"`
	MinPollGapMillis         int     `yaml:"min_poll_gap_ms"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when a field is absent from the
// file. The realtime constants here are the authoritative ones; earlier
// deployments disagreed with each other, so everything is overridable.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 3000},
		Cache: CacheConfig{
			Capacity:         512,
			QueueTTLSeconds:  15,
			StatsTTLSeconds:  30,
			PriorityPrefixes: []string{"counts", "stats:"},
		},
		Realtime: RealtimeConfig{
			HeartbeatIntervalSeconds: 45,
			HeartbeatTimeoutSeconds:  10,
			DialTimeoutSeconds:       8,
			InitialReconnectMillis:   1000,
			MaxReconnectMillis:       30000,
			BackoffFactor:            1.4,
			JitterFraction:           0.2,
			MaxConsecutiveFailures:   4,
			FailurePauseSeconds:      60,
			MinPollIntervalSeconds:   5,
			MaxPollIntervalSeconds:   45,
			MinPollGapMillis:         1500,
		},
	}
}

func (c *Config) validate() error {
	rt := c.Realtime
	if rt.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0, got %v", rt.BackoffFactor)
	}
	if rt.JitterFraction < 0 || rt.JitterFraction >= 1 {
		return fmt.Errorf("jitter_fraction must be in [0, 1), got %v", rt.JitterFraction)
	}
	if rt.MaxReconnectMillis < rt.InitialReconnectMillis {
		return fmt.Errorf("max_reconnect_ms must be >= initial_reconnect_ms")
	}
	if rt.MaxPollIntervalSeconds < rt.MinPollIntervalSeconds {
		return fmt.Errorf("max_poll_interval_seconds must be >= min_poll_interval_seconds")
	}
	if rt.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be >= 1")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be >= 1")
	}
	return nil
}

func (rt RealtimeConfig) HeartbeatInterval() time.Duration {
	return time.Duration(rt.HeartbeatIntervalSeconds) * time.Second
}

func (rt RealtimeConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(rt.HeartbeatTimeoutSeconds) * time.Second
}

func (rt RealtimeConfig) DialTimeout() time.Duration {
	return time.Duration(rt.DialTimeoutSeconds) * time.Second
}

func (rt RealtimeConfig) InitialReconnectDelay() time.Duration {
	return time.Duration(rt.InitialReconnectMillis) * time.Millisecond
}

func (rt RealtimeConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(rt.MaxReconnectMillis) * time.Millisecond
}

func (rt RealtimeConfig) FailurePause() time.Duration {
	return time.Duration(rt.FailurePauseSeconds) * time.Second
}

func (rt RealtimeConfig) MinPollInterval() time.Duration {
	return time.Duration(rt.MinPollIntervalSeconds) * time.Second
}

func (rt RealtimeConfig) MaxPollInterval() time.Duration {
	return time.Duration(rt.MaxPollIntervalSeconds) * time.Second
}

func (rt RealtimeConfig) MinPollGap() time.Duration {
	return time.Duration(rt.MinPollGapMillis) * time.Millisecond
}

func (c CacheConfig) QueueTTL() time.Duration {
	return time.Duration(c.QueueTTLSeconds) * time.Second
}

func (c CacheConfig) StatsTTL() time.Duration {
	return time.Duration(c.StatsTTLSeconds) * time.Second
}
