// config.go: host configuration with file loading and environment expansion
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is tried before the bare name when expanding ${VAR}.
const EnvPrefix = "DEVTOOLS_"

// HostConfig configures a Host.
type HostConfig struct {
	// DescriptorPath overrides the bundled descriptor resource with a file.
	DescriptorPath string `json:"descriptor_path" yaml:"descriptor_path"`

	// WatchDescriptors re-runs discovery whenever DescriptorPath changes.
	WatchDescriptors bool          `json:"watch_descriptors" yaml:"watch_descriptors"`
	WatchInterval    time.Duration `json:"watch_interval" yaml:"watch_interval"`

	// AuditFile receives the argus audit trail of the descriptor watcher.
	AuditFile string `json:"audit_file" yaml:"audit_file"`

	DebounceWindow time.Duration `json:"debounce_window" yaml:"debounce_window"`

	// StateFile persists installation state. Empty keeps it in memory.
	StateFile string `json:"state_file" yaml:"state_file"`

	// AutoInstall lists types installed at startup unless state was
	// persisted for them.
	AutoInstall []string `json:"auto_install" yaml:"auto_install"`

	// InstallAllOnStartup installs every catalog type at startup.
	InstallAllOnStartup bool `json:"install_all_on_startup" yaml:"install_all_on_startup"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	Logger Logger `json:"-" yaml:"-"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Enabled selects Prometheus; otherwise metrics stay in memory.
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultHostConfig returns a configuration with every default applied.
func DefaultHostConfig() HostConfig {
	cfg := HostConfig{}
	setHostConfigDefaults(&cfg)
	return cfg
}

func setHostConfigDefaults(cfg *HostConfig) {
	if cfg.Logger == nil {
		cfg.Logger = DefaultLogger()
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.WatchInterval == 0 {
		cfg.WatchInterval = 2 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "devtools"
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var metricNamespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks field ranges and combinations.
func (c *HostConfig) Validate() error {
	if c.DebounceWindow < 0 {
		return NewConfigValidationError("debounce_window cannot be negative", nil)
	}
	if c.DebounceWindow > time.Minute {
		return NewConfigValidationError("debounce_window cannot exceed one minute", nil)
	}
	if c.WatchInterval < 0 {
		return NewConfigValidationError("watch_interval cannot be negative", nil)
	}
	if c.WatchDescriptors && c.DescriptorPath == "" {
		return NewConfigValidationError("watch_descriptors requires descriptor_path", nil)
	}
	if c.AuditFile != "" && !c.WatchDescriptors {
		return NewConfigValidationError("audit_file requires watch_descriptors", nil)
	}
	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		return NewConfigValidationError(fmt.Sprintf("unknown log_level %q", c.LogLevel), nil)
	}
	if c.Metrics.Namespace != "" && !metricNamespacePattern.MatchString(c.Metrics.Namespace) {
		return NewConfigValidationError(fmt.Sprintf("invalid metrics namespace %q", c.Metrics.Namespace), nil)
	}
	seen := make(map[string]bool, len(c.AutoInstall))
	for _, id := range c.AutoInstall {
		if strings.TrimSpace(id) == "" {
			return NewConfigValidationError("auto_install contains an empty plugin id", nil)
		}
		if seen[id] {
			return NewConfigValidationError(fmt.Sprintf("auto_install lists %q twice", id), nil)
		}
		seen[id] = true
	}
	return nil
}

// LoadHostConfig reads a JSON or YAML configuration file, expands
// ${VAR} and ${VAR:-default} in path fields, applies defaults and
// validates the result.
func LoadHostConfig(path string) (HostConfig, error) {
	var cfg HostConfig

	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- operator supplied config path
	if err != nil {
		return cfg, NewConfigNotFoundError(path, err)
	}

	switch format := argus.DetectFormat(path); format {
	case argus.FormatJSON:
		err = decodeHostConfigJSON(data, &cfg)
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, NewConfigParseError(path, NewConfigValidationError("unsupported config format: "+format.String(), nil))
	}
	if err != nil {
		return cfg, NewConfigParseError(path, err)
	}

	if err := cfg.expandEnv(); err != nil {
		return cfg, err
	}
	setHostConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// hostConfigJSON mirrors HostConfig with durations as raw values, since
// encoding/json has no notion of "500ms".
type hostConfigJSON struct {
	DescriptorPath      string          `json:"descriptor_path"`
	WatchDescriptors    bool            `json:"watch_descriptors"`
	WatchInterval       json.RawMessage `json:"watch_interval"`
	AuditFile           string          `json:"audit_file"`
	DebounceWindow      json.RawMessage `json:"debounce_window"`
	StateFile           string          `json:"state_file"`
	AutoInstall         []string        `json:"auto_install"`
	InstallAllOnStartup bool            `json:"install_all_on_startup"`
	LogLevel            string          `json:"log_level"`
	Metrics             MetricsConfig   `json:"metrics"`
}

func decodeHostConfigJSON(data []byte, cfg *HostConfig) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw hostConfigJSON
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	watch, err := parseJSONDuration("watch_interval", raw.WatchInterval)
	if err != nil {
		return err
	}
	debounce, err := parseJSONDuration("debounce_window", raw.DebounceWindow)
	if err != nil {
		return err
	}
	*cfg = HostConfig{
		DescriptorPath:      raw.DescriptorPath,
		WatchDescriptors:    raw.WatchDescriptors,
		WatchInterval:       watch,
		AuditFile:           raw.AuditFile,
		DebounceWindow:      debounce,
		StateFile:           raw.StateFile,
		AutoInstall:         raw.AutoInstall,
		InstallAllOnStartup: raw.InstallAllOnStartup,
		LogLevel:            raw.LogLevel,
		Metrics:             raw.Metrics,
	}
	return nil
}

// parseJSONDuration accepts "500ms" style strings or integer milliseconds.
func parseJSONDuration(field string, raw json.RawMessage) (time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", field, err)
		}
		return d, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: expected duration string or milliseconds", field)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (c *HostConfig) expandEnv() error {
	for _, field := range []*string{&c.DescriptorPath, &c.AuditFile, &c.StateFile, &c.LogLevel} {
		expanded, err := ExpandEnvironmentVariables(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

var envVariablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvironmentVariables replaces ${VAR} and ${VAR:-default}. The
// DEVTOOLS_-prefixed variable wins over the bare one; unset variables
// without a default expand to the empty string.
func ExpandEnvironmentVariables(input string) (string, error) {
	if input == "" {
		return input, nil
	}

	var firstErr error
	result := envVariablePattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVariablePattern.FindStringSubmatch(match)
		value := lookupEnv(sub[1], sub[3])
		if err := validateEnvValue(sub[1], value); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return value
	})
	if firstErr != nil {
		return input, firstErr
	}
	return result, nil
}

func lookupEnv(name, inlineDefault string) string {
	if value := os.Getenv(EnvPrefix + name); value != "" {
		return value
	}
	if value := os.Getenv(name); value != "" {
		return value
	}
	return inlineDefault
}

func validateEnvValue(name, value string) error {
	if strings.Contains(value, "\x00") {
		return NewConfigValidationError("environment variable "+name+" contains a null byte", nil)
	}
	if len(value) > 4096 {
		return NewConfigValidationError("environment variable "+name+" is too long", nil)
	}
	return nil
}
