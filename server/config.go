// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Relay configuration: an optional YAML file overridden by environment variables.

package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/momentics/hioload-camrelay/api"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Host            string        `yaml:"host" env:"HOST" env-description:"bind host, empty for all interfaces"`
	Port            int           `yaml:"port" env:"PORT" env-default:"3000" env-description:"listen port"`
	PullInterval    time.Duration `yaml:"pull_interval" env:"PULL_INTERVAL" env-default:"200ms" env-description:"multipart stream tick"`
	ProbeInterval   time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL" env-default:"30s" env-description:"push consumer liveness probe period"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"5s" env-description:"per-write deadline, negative disables"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s" env-description:"graceful drain deadline"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" env:"MAX_MESSAGE_BYTES" env-default:"4194304" env-description:"max inbound websocket message"`
	ControlQueue    int           `yaml:"control_queue" env:"CONTROL_QUEUE" env-default:"64" env-description:"pending text messages per consumer"`
	MaxConsumers    int64         `yaml:"max_consumers" env:"MAX_CONSUMERS" env-default:"0" env-description:"push consumer cap, 0 = unlimited"`
	MaxPullSessions int64         `yaml:"max_pull_sessions" env:"MAX_PULL_SESSIONS" env-default:"0" env-description:"pull session cap, 0 = unlimited"`
	ChatRate        float64       `yaml:"chat_rate" env:"CHAT_RATE" env-default:"20" env-description:"text messages per second per peer, negative = unlimited"`
	ChatBurst       int           `yaml:"chat_burst" env:"CHAT_BURST" env-default:"40"`
	RegistryShards  int           `yaml:"registry_shards" env:"REGISTRY_SHARDS" env-default:"16"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// DefaultConfig returns the same values the env-default tags produce.
func DefaultConfig() *Config {
	return &Config{
		Port:            3000,
		PullInterval:    200 * time.Millisecond,
		ProbeInterval:   30 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxMessageBytes: 4 << 20,
		ControlQueue:    64,
		ChatRate:        20,
		ChatBurst:       40,
		RegistryShards:  16,
		LogLevel:        "info",
	}
}

// LoadConfig reads path (if not empty) and then the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the relay cannot run with. Failures are
// api.Error values with ErrCodeInvalidArgument.
func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return invalid("port", c.Port, "out of range")
	case c.PullInterval <= 0:
		return invalid("pull_interval", c.PullInterval, "must be positive")
	case c.ProbeInterval <= 0:
		return invalid("probe_interval", c.ProbeInterval, "must be positive")
	case c.ShutdownTimeout < 0:
		return invalid("shutdown_timeout", c.ShutdownTimeout, "must not be negative")
	case c.MaxConsumers < 0:
		return invalid("max_consumers", c.MaxConsumers, "must not be negative")
	case c.MaxPullSessions < 0:
		return invalid("max_pull_sessions", c.MaxPullSessions, "must not be negative")
	}
	return nil
}

func invalid(field string, value any, reason string) error {
	return api.NewError(api.ErrCodeInvalidArgument, fmt.Sprintf("config: %s %s", field, reason)).
		WithContext("value", value)
}

// writeTimeout is the effective per-write deadline; zero means none.
// cleanenv replaces a zero value with the default, so "disabled" is spelled
// as a negative value in both YAML and the environment.
func (c *Config) writeTimeout() time.Duration {
	return max(c.WriteTimeout, 0)
}

// chatRate is the effective per-peer chat limit; zero means unlimited.
func (c *Config) chatRate() float64 {
	return max(c.ChatRate, 0)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Snapshot renders the config for the diagnostics endpoint.
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"listen_addr":       c.Addr(),
		"pull_interval":     c.PullInterval.String(),
		"probe_interval":    c.ProbeInterval.String(),
		"write_timeout":     c.WriteTimeout.String(),
		"shutdown_timeout":  c.ShutdownTimeout.String(),
		"max_message_bytes": c.MaxMessageBytes,
		"control_queue":     c.ControlQueue,
		"max_consumers":     c.MaxConsumers,
		"max_pull_sessions": c.MaxPullSessions,
		"chat_rate":         c.ChatRate,
		"chat_burst":        c.ChatBurst,
		"registry_shards":   c.RegistryShards,
		"log_level":         c.LogLevel,
	}
}
