// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the warden service configuration.
//
// Values are layered: built-in defaults, then warden.yaml, then WARDEN_*
// environment variables (nested keys use underscores, e.g.
// WARDEN_SERVER_PORT). The AI credential is also read from API_KEY and the
// tracing endpoint from OTEL_EXPORTER_OTLP_ENDPOINT.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	EventLog  EventLogConfig  `mapstructure:"eventlog"`
	AI        AIConfig        `mapstructure:"ai"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `mapstructure:"json"`
	Dir   string `mapstructure:"dir"`
}

type StoreConfig struct {
	Path       string `mapstructure:"path" validate:"required_without=InMemory"`
	InMemory   bool   `mapstructure:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

type EventLogConfig struct {
	Capacity int `mapstructure:"capacity" validate:"min=1"`
}

type AIConfig struct {
	// Credential selects live mode when set to anything but "" or "demo".
	Credential    string        `mapstructure:"credential"`
	Backend       string        `mapstructure:"backend" validate:"oneof=gemini openai anthropic ollama"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RatePerSecond float64       `mapstructure:"rate_per_second" validate:"gt=0"`
	Burst         int           `mapstructure:"burst" validate:"min=1"`
	Temperature   float64       `mapstructure:"temperature" validate:"min=0,max=2"`
}

type SimulatorConfig struct {
	ValidationDelay time.Duration `mapstructure:"validation_delay"`
	TriggerDelay    time.Duration `mapstructure:"trigger_delay"`
}

type ResolverConfig struct {
	GitDelay     time.Duration `mapstructure:"git_delay"`
	CompileDelay time.Duration `mapstructure:"compile_delay"`
	DeployDelay  time.Duration `mapstructure:"deploy_delay"`
	DoneDelay    time.Duration `mapstructure:"done_delay"`
	StepTimeout  time.Duration `mapstructure:"step_timeout"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

var defaults = map[string]any{
	"server.host":                "0.0.0.0",
	"server.port":                12310,
	"server.allowed_origins":     []string{"http://localhost:5173", "http://localhost:3000"},
	"server.shutdown_timeout":    "10s",
	"log.level":                  "info",
	"log.json":                   false,
	"log.dir":                    "",
	"store.path":                 "~/.warden/data",
	"store.in_memory":            false,
	"store.sync_writes":          false,
	"eventlog.capacity":          1000,
	"ai.credential":              "",
	"ai.backend":                 "gemini",
	"ai.model":                   "",
	"ai.base_url":                "",
	"ai.timeout":                 "60s",
	"ai.rate_per_second":         1.0,
	"ai.burst":                   2,
	"ai.temperature":             0.2,
	"simulator.validation_delay": "800ms",
	"simulator.trigger_delay":    "1s",
	"resolver.git_delay":         "800ms",
	"resolver.compile_delay":     "1s",
	"resolver.deploy_delay":      "1200ms",
	"resolver.done_delay":        "500ms",
	"resolver.step_timeout":      "30s",
	"tracing.enabled":            false,
	"tracing.endpoint":           "",
}

// Load reads the configuration.
//
// # Description
//
// With an empty file, warden.yaml is looked up in the working directory
// and in ~/.warden; a missing file is not an error. An explicit file must
// exist. The result is validated.
//
// # Outputs
//
//   - Config: the merged configuration.
//   - *viper.Viper: the instance it came from, for WatchLogLevel.
//   - error: unreadable or invalid configuration.
func Load(file string) (Config, *viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("ai.credential", "WARDEN_AI_CREDENTIAL", "WARDEN_API_KEY", "API_KEY")
	_ = v.BindEnv("tracing.endpoint", "WARDEN_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("warden")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.warden")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, v, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// WatchLogLevel re-reads log.level whenever the config file changes and
// applies it to logger. It is a no-op when no config file was loaded.
func WatchLogLevel(v *viper.Viper, logger *logging.Logger) bool {
	if v == nil || v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := logging.ParseLevel(v.GetString("log.level"))
		if level == logger.Level() {
			return
		}
		logger.SetLevel(level)
		logger.Info("log level changed", "level", level.String(), "file", e.Name)
	})
	v.WatchConfig()
	return true
}
