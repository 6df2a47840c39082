// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvServerURL overrides the configured server URL.
const EnvServerURL = "WARDEN_SERVER_URL"

// DefaultServerURL matches the service's default listen port.
const DefaultServerURL = "http://localhost:12310"

// CLIConfig is persisted at ~/.warden/cli.yaml.
type CLIConfig struct {
	ServerURL string `yaml:"server_url"`

	// Output is a personality level: full, minimal or machine. Empty means
	// detect from the terminal.
	Output string `yaml:"output,omitempty"`

	// Confirm enables interactive confirmation before destructive commands.
	Confirm bool `yaml:"confirm"`

	// TimeoutSeconds bounds each API call. Execution with --wait may take
	// several seconds in mock mode.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DefaultCLIConfig is written on first run.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		ServerURL:      DefaultServerURL,
		Confirm:        true,
		TimeoutSeconds: 120,
	}
}

// DefaultCLIConfigPath returns ~/.warden/cli.yaml.
func DefaultCLIConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".warden", "cli.yaml"), nil
}

// LoadCLIConfig reads path, creating it with defaults when missing.
// created reports whether a new file was written.
func LoadCLIConfig(path string) (cfg CLIConfig, created bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if err := writeDefaultCLIConfig(path); err != nil {
			return CLIConfig{}, false, err
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return CLIConfig{}, created, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg = DefaultCLIConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, created, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, created, nil
}

func writeDefaultCLIConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultCLIConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// resolveServerURL applies flag > env > config precedence.
func resolveServerURL(flag string, cfg CLIConfig) string {
	for _, v := range []string{flag, os.Getenv(EnvServerURL), cfg.ServerURL} {
		if v = strings.TrimSpace(v); v != "" {
			return strings.TrimRight(v, "/")
		}
	}
	return DefaultServerURL
}
