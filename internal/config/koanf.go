// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file search order. The first file
// found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/lumigrid/config.yaml",
	"/etc/lumigrid/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. These are loaded first and
// overridden by the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSAllowedOrigins: nil,
			RateLimitPerMinute: 300,
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EventsSubject:  "streetlights.events",
			FramesSubject:  "streetlights.frames",
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1, // retry forever
		},
		Responder: ResponderConfig{
			URL:     "",
			Timeout: 5 * time.Second,
		},
		Simulator: SimulatorConfig{
			Enabled:      false,
			Interval:     time.Second,
			Streetlights: 12,
		},
		Alerts: AlertsConfig{
			WindowSize:          10,
			ConfidenceThreshold: 90,
			Location:            "Monitored intersection",
		},
		Stream: StreamConfig{
			MailboxDepth: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: struct defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// SERVER_PORT -> server.port, NATS_EVENTS_SUBJECT -> nats.events_subject
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the path of the first config file that exists,
// checking CONFIG_PATH before the default search paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables return "" and are ignored, so unrelated environment
// noise never leaks into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"server_host":                  "server.host",
		"server_port":                  "server.port",
		"server_read_timeout":          "server.read_timeout",
		"server_write_timeout":         "server.write_timeout",
		"server_shutdown_timeout":      "server.shutdown_timeout",
		"server_cors_allowed_origins":  "server.cors_allowed_origins",
		"server_rate_limit_per_minute": "server.rate_limit_per_minute",

		"nats_enabled":         "nats.enabled",
		"nats_url":             "nats.url",
		"nats_embedded":        "nats.embedded_server",
		"nats_events_subject":  "nats.events_subject",
		"nats_frames_subject":  "nats.frames_subject",
		"nats_reconnect_wait":  "nats.reconnect_wait",
		"nats_max_reconnects":  "nats.max_reconnects",

		"responder_url":     "responder.url",
		"responder_timeout": "responder.timeout",

		"simulator_enabled":      "simulator.enabled",
		"simulator_interval":     "simulator.interval",
		"simulator_streetlights": "simulator.streetlights",

		"alerts_window_size":          "alerts.window_size",
		"alerts_confidence_threshold": "alerts.confidence_threshold",
		"alerts_location":             "alerts.location",

		"stream_mailbox_depth": "stream.mailbox_depth",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
