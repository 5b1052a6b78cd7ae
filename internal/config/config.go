// Package config provides configuration types and loading for the Quantify
// client.
//
// Configuration is file-based (quantify.yaml) with environment variable
// overrides. It covers the client-side concerns only: where the API lives,
// where the session is persisted, and how the notification channel behaves.
// Server-side settings (tax rates, loyalty tiers) are fetched at runtime
// through the settings package, not configured here.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration for the Quantify client.
type Config struct {
	// API configures the HTTP client.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Session configures durable session storage.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Notifications configures the live notification channel.
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`

	// LogLevel controls log verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// APIConfig configures the HTTP client.
type APIConfig struct {
	// BaseURL is the API root, e.g. "http://localhost:8080/api/v1".
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// AuthServiceURL overrides where token refreshes go. When empty, the
	// auth service is assumed to live under BaseURL at /users.
	AuthServiceURL string `yaml:"auth_service_url" mapstructure:"auth_service_url" validate:"omitempty,url"`

	// Timeout is the per-request timeout (e.g. "15s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// SessionConfig configures durable session storage.
type SessionConfig struct {
	// StorePath is the sqlite file holding tokens and identity between
	// runs. Default: ~/.quantify/session.db.
	StorePath string `yaml:"store_path" mapstructure:"store_path"`
}

// NotificationsConfig configures the live notification channel.
type NotificationsConfig struct {
	// SocketURL overrides the push endpoint. When empty it is derived
	// from the API base URL (scheme upgraded, path /ws).
	SocketURL string `yaml:"socket_url" mapstructure:"socket_url" validate:"omitempty,socket_url"`

	// ReconnectDelay is the fixed backoff before reconnect attempts
	// (e.g. "5s").
	ReconnectDelay string `yaml:"reconnect_delay" mapstructure:"reconnect_delay" validate:"omitempty,duration"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8080/api/v1"
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "15s"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Notifications.ReconnectDelay == "" {
		c.Notifications.ReconnectDelay = "5s"
	}
	if c.Session.StorePath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Session.StorePath = filepath.Join(home, ".quantify", "session.db")
		} else {
			c.Session.StorePath = "session.db"
		}
	}
}

// APITimeout returns the parsed request timeout. Call after Validate; an
// unparsable value falls back to 15 seconds.
func (c *Config) APITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// ReconnectDelay returns the parsed notification backoff. Call after
// Validate; an unparsable value falls back to 5 seconds.
func (c *Config) ReconnectDelay() time.Duration {
	d, err := time.ParseDuration(c.Notifications.ReconnectDelay)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
