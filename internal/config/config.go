// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package config loads and validates the Lumigrid server configuration.
//
// Configuration is layered: struct defaults, then an optional YAML file,
// then environment variables with the highest priority.
package config

import (
	"fmt"
	"time"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	NATS      NATSConfig      `koanf:"nats"`
	Responder ResponderConfig `koanf:"responder"`
	Simulator SimulatorConfig `koanf:"simulator"`
	Alerts    AlertsConfig    `koanf:"alerts"`
	Stream    StreamConfig    `koanf:"stream"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSAllowedOrigins lists origins allowed to call the API. Empty
	// allows all origins, which suits a dashboard served off-host.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimitPerMinute caps requests per client IP. Zero disables
	// rate limiting.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
}

// NATSConfig configures the upstream event transport.
type NATSConfig struct {
	// Enabled turns the NATS ingest bridge on. When disabled the
	// simulator is the only event source.
	Enabled bool `koanf:"enabled"`

	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS server instead of
	// connecting to an external one.
	EmbeddedServer bool `koanf:"embedded_server"`

	EventsSubject string `koanf:"events_subject"`
	FramesSubject string `koanf:"frames_subject"`

	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// MaxReconnects below zero means retry forever.
	MaxReconnects int `koanf:"max_reconnects"`
}

// ResponderConfig configures the external responder dispatch service.
type ResponderConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// SimulatorConfig configures the built-in telemetry generator used for
// development and demos.
type SimulatorConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`

	// Streetlights is the number of simulated lights.
	Streetlights int `koanf:"streetlights"`
}

// AlertsConfig tunes the detection reconciler.
type AlertsConfig struct {
	// WindowSize bounds the alert window. Valid range is 10 to 20.
	WindowSize int `koanf:"window_size"`

	// ConfidenceThreshold is the exclusive minimum prediction
	// confidence (percent) that raises an alert.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// Location labels new alerts with the monitored site.
	Location string `koanf:"location"`
}

// StreamConfig tunes the event broadcaster.
type StreamConfig struct {
	// MailboxDepth is the per-subscriber event buffer size.
	MailboxDepth int `koanf:"mailbox_depth"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	if err := c.validateSimulator(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must not be negative, got %d", c.Server.RateLimitPerMinute)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled=true without an embedded server")
	}
	if c.NATS.EventsSubject == "" {
		return fmt.Errorf("nats.events_subject must not be empty")
	}
	if c.NATS.FramesSubject == "" {
		return fmt.Errorf("nats.frames_subject must not be empty")
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.WindowSize < 10 || c.Alerts.WindowSize > 20 {
		return fmt.Errorf("alerts.window_size must be between 10 and 20, got %d", c.Alerts.WindowSize)
	}
	if c.Alerts.ConfidenceThreshold <= 0 || c.Alerts.ConfidenceThreshold >= 100 {
		return fmt.Errorf("alerts.confidence_threshold must be between 0 and 100 exclusive, got %g", c.Alerts.ConfidenceThreshold)
	}
	return nil
}

func (c *Config) validateSimulator() error {
	if !c.Simulator.Enabled {
		return nil
	}
	if c.Simulator.Interval <= 0 {
		return fmt.Errorf("simulator.interval must be positive, got %s", c.Simulator.Interval)
	}
	if c.Simulator.Streetlights < 1 {
		return fmt.Errorf("simulator.streetlights must be at least 1, got %d", c.Simulator.Streetlights)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
