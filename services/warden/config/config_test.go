// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
)

// isolate runs the test in an empty directory with an empty HOME and no
// inherited credentials.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, k := range []string{"API_KEY", "WARDEN_API_KEY", "WARDEN_AI_CREDENTIAL", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, v, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, v.ConfigFileUsed())

	assert.Equal(t, 12310, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:12310", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.EventLog.Capacity)
	assert.Equal(t, "gemini", cfg.AI.Backend)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Empty(t, cfg.AI.Credential)
	assert.Equal(t, 800*time.Millisecond, cfg.Simulator.ValidationDelay)
	assert.Equal(t, 1200*time.Millisecond, cfg.Resolver.DeployDelay)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := isolate(t)
	yaml := `
server:
  port: 9000
log:
  level: debug
ai:
  backend: openai
  timeout: 5s
resolver:
  git_delay: 10ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.yaml"), []byte(yaml), 0o600))
	t.Setenv("WARDEN_SERVER_PORT", "9100")
	t.Setenv("API_KEY", "sk-test")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, v, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, v.ConfigFileUsed())

	assert.Equal(t, 9100, cfg.Server.Port, "env beats file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "openai", cfg.AI.Backend)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Resolver.GitDelay)
	assert.Equal(t, time.Second, cfg.Resolver.CompileDelay, "unset keys keep defaults")
	assert.Equal(t, "sk-test", cfg.AI.Credential)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
}

func TestLoad_WardenKeyBeatsGenericKey(t *testing.T) {
	isolate(t)
	t.Setenv("API_KEY", "generic")
	t.Setenv("WARDEN_API_KEY", "specific")

	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "specific", cfg.AI.Credential)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eventlog:\n  capacity: 50\n"), 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.EventLog.Capacity)

	_, _, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")

	cases := map[string]string{
		"backend":  "ai:\n  backend: palm\n",
		"port":     "server:\n  port: 70000\n",
		"level":    "log:\n  level: loud\n",
		"capacity": "eventlog:\n  capacity: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, _, err := Load(path)
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestWatchLogLevel_NoFile(t *testing.T) {
	isolate(t)
	_, v, err := Load("")
	require.NoError(t, err)
	assert.False(t, WatchLogLevel(v, logging.Nop()))
	assert.False(t, WatchLogLevel(nil, logging.Nop()))
}
