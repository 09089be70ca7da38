// config_test.go: tests for host configuration loading and validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHostConfig(t *testing.T) {
	cfg := DefaultHostConfig()

	assert.Equal(t, DefaultDebounceWindow, cfg.DebounceWindow)
	assert.Equal(t, 2*time.Second, cfg.WatchInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "devtools", cfg.Metrics.Namespace)
	assert.NotNil(t, cfg.Logger)
	assert.NoError(t, cfg.Validate())
}

func TestHostConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*HostConfig)
		want   string
	}{
		{"NegativeDebounce", func(c *HostConfig) { c.DebounceWindow = -time.Millisecond }, "debounce_window cannot be negative"},
		{"HugeDebounce", func(c *HostConfig) { c.DebounceWindow = 2 * time.Minute }, "debounce_window cannot exceed one minute"},
		{"NegativeInterval", func(c *HostConfig) { c.WatchInterval = -1 }, "watch_interval cannot be negative"},
		{"WatchWithoutPath", func(c *HostConfig) { c.WatchDescriptors = true }, "watch_descriptors requires descriptor_path"},
		{"AuditWithoutWatch", func(c *HostConfig) { c.AuditFile = "/tmp/audit.jsonl" }, "audit_file requires watch_descriptors"},
		{"LogLevel", func(c *HostConfig) { c.LogLevel = "loud" }, "unknown log_level"},
		{"Namespace", func(c *HostConfig) { c.Metrics.Namespace = "dev-tools" }, "invalid metrics namespace"},
		{"EmptyAutoInstall", func(c *HostConfig) { c.AutoInstall = []string{" "} }, "empty plugin id"},
		{"DuplicateAutoInstall", func(c *HostConfig) { c.AutoInstall = []string{"A", "A"} }, "twice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultHostConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeConfigValidation))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadHostConfig_YAML(t *testing.T) {
	// Setup: path fields reference the environment
	t.Setenv("DEVTOOLS_STATE_DIR", "/var/lib/devtools")
	t.Setenv("STATE_DIR", "/ignored")
	path := filepath.Join(t.TempDir(), "devtools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
descriptor_path: ${DESCRIPTORS:-/etc/devtools/plugins.json}
state_file: ${STATE_DIR}/state.yaml
debounce_window: 250ms
auto_install:
  - JsonFormatPlugin
metrics:
  enabled: true
`), 0o600))

	// Execute
	cfg, err := LoadHostConfig(path)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "/etc/devtools/plugins.json", cfg.DescriptorPath)
	assert.Equal(t, "/var/lib/devtools/state.yaml", cfg.StateFile)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceWindow)
	assert.Equal(t, []string{"JsonFormatPlugin"}, cfg.AutoInstall)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "devtools", cfg.Metrics.Namespace)
	assert.Equal(t, 2*time.Second, cfg.WatchInterval)
}

func TestLoadHostConfig_JSON(t *testing.T) {
	dir := t.TempDir()

	t.Run("DurationForms", func(t *testing.T) {
		path := filepath.Join(dir, "a.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"descriptor_path": "/tmp/plugins.json",
			"watch_descriptors": true,
			"watch_interval": "1s",
			"audit_file": "/tmp/audit.jsonl",
			"debounce_window": 300,
			"install_all_on_startup": true
		}`), 0o600))

		cfg, err := LoadHostConfig(path)
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.WatchInterval)
		assert.Equal(t, 300*time.Millisecond, cfg.DebounceWindow)
		assert.True(t, cfg.WatchDescriptors)
		assert.Equal(t, "/tmp/audit.jsonl", cfg.AuditFile)
		assert.True(t, cfg.InstallAllOnStartup)
	})

	t.Run("BadDuration", func(t *testing.T) {
		path := filepath.Join(dir, "b.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"debounce_window": "soon"}`), 0o600))
		_, err := LoadHostConfig(path)
		assert.True(t, HasErrorCode(err, ErrCodeConfigParse))
	})

	t.Run("InvalidValues", func(t *testing.T) {
		path := filepath.Join(dir, "c.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"watch_descriptors": true}`), 0o600))
		_, err := LoadHostConfig(path)
		assert.True(t, HasErrorCode(err, ErrCodeConfigValidation))
	})
}

func TestLoadHostConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadHostConfig(filepath.Join(dir, "absent.yaml"))
	assert.True(t, HasErrorCode(err, ErrCodeConfigNotFound))

	odd := filepath.Join(dir, "config.xyz")
	require.NoError(t, os.WriteFile(odd, []byte("x"), 0o600))
	_, err = LoadHostConfig(odd)
	assert.True(t, HasErrorCode(err, ErrCodeConfigParse))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("auto_install: [unclosed"), 0o600))
	_, err = LoadHostConfig(broken)
	assert.True(t, HasErrorCode(err, ErrCodeConfigParse))
}

func TestExpandEnvironmentVariables(t *testing.T) {
	t.Setenv("DEVTOOLS_HOME", "/prefixed")
	t.Setenv("HOME", "/bare")
	t.Setenv("ONLY_BARE", "bare")
	t.Setenv("LONG_VALUE", strings.Repeat("x", 5000))

	cases := map[string]string{
		"":                          "",
		"plain":                     "plain",
		"${HOME}/x":                 "/prefixed/x",
		"${ONLY_BARE}":              "bare",
		"${DEVTOOLS_UNSET_VAR}":     "",
		"${DEVTOOLS_UNSET_VAR:-d}":  "d",
		"$HOME is not expanded":     "$HOME is not expanded",
		"${ONLY_BARE}-${ONLY_BARE}": "bare-bare",
	}
	for in, want := range cases {
		got, err := ExpandEnvironmentVariables(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := ExpandEnvironmentVariables("${LONG_VALUE}")
	assert.True(t, HasErrorCode(err, ErrCodeConfigValidation))
	assert.Equal(t, "${LONG_VALUE}", got)
}
