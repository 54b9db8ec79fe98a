// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for chatsync.
type Config struct {
	// Gateway configures the session HTTP API client.
	Gateway GatewayConfig `yaml:"gateway"`

	// Channel configures the duplex message channel.
	Channel ChannelConfig `yaml:"channel"`

	// Chat configures message synchronization.
	Chat ChatConfig `yaml:"chat"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`
}

// GatewayConfig configures the gateway HTTP client.
type GatewayConfig struct {
	// BaseURL is the gateway HTTP root.
	// Default: http://localhost:8899
	BaseURL string `yaml:"base_url"`

	// PollInterval is the session pairing poll cadence.
	// Default: 2s
	PollInterval string `yaml:"poll_interval"`
}

// ChannelConfig configures the duplex channel.
type ChannelConfig struct {
	// URL is the channel endpoint.
	// Default: ws://localhost:8899
	URL string `yaml:"url"`

	// HeartbeatInterval is the liveness probe cadence. Empty uses the
	// channel default (30s).
	HeartbeatInterval string `yaml:"heartbeat_interval"`

	// ReconnectBase is the first reconnect backoff delay. Empty uses
	// the channel default (1s).
	ReconnectBase string `yaml:"reconnect_base"`

	// MaxReconnectAttempts caps automatic reconnection. Zero uses the
	// channel default (5).
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// DispatchTimeout bounds how long a command waits for an open
	// channel. Empty uses the channel default (10s).
	DispatchTimeout string `yaml:"dispatch_timeout"`
}

// ChatConfig configures message synchronization.
type ChatConfig struct {
	// AddressSuffix is the platform address domain appended to bare
	// recipients. Empty uses the channel default (@s.whatsapp.net).
	AddressSuffix string `yaml:"address_suffix"`

	// RefreshInterval is the periodic listing refresh cadence. Empty
	// uses the chat default (10s).
	RefreshInterval string `yaml:"refresh_interval"`

	// LoadThrottle is the minimum spacing between listing requests.
	// Empty uses the chat default (2s).
	LoadThrottle string `yaml:"load_throttle"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration. These exist so every
// field has a sensible zero-value, not as a substitute for the config
// file.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:      "http://localhost:8899",
			PollInterval: "2s",
		},
		Channel: ChannelConfig{
			URL: "ws://localhost:8899",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the CHATSYNC_CONFIG environment
// variable. There are no fallbacks: if the variable is unset, Load
// fails.
func Load() (*Config, error) {
	path := os.Getenv("CHATSYNC_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("CHATSYNC_CONFIG environment variable not set; " +
			"set it to the path of your chatsync.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions. Empty
// duration fields are valid (they select component defaults); present
// ones must parse.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url must be set")
	}
	if c.Channel.URL == "" {
		return fmt.Errorf("channel.url must be set")
	}
	if c.Channel.MaxReconnectAttempts < 0 {
		return fmt.Errorf("channel.max_reconnect_attempts must not be negative")
	}

	durations := map[string]string{
		"gateway.poll_interval":      c.Gateway.PollInterval,
		"channel.heartbeat_interval": c.Channel.HeartbeatInterval,
		"channel.reconnect_base":     c.Channel.ReconnectBase,
		"channel.dispatch_timeout":   c.Channel.DispatchTimeout,
		"chat.refresh_interval":      c.Chat.RefreshInterval,
		"chat.load_throttle":         c.Chat.LoadThrottle,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// Duration parses a validated duration field; empty returns zero,
// which components interpret as "use my default".
func Duration(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// SlogLevel maps the configured level to a slog.Level.
func (c *LoggingConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
