// content_plugin.go: the contract every hosted content plugin satisfies
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"os"
	"time"
)

// ContentPlugin is an editor component hosted inside a tab.
//
// The host calls Initialize once after construction and Destroy at most
// once when the tab closes or the type is uninstalled. Destroy must also
// be safe on an instance that was never initialized, since the catalog
// probes every type by constructing and destroying one instance.
type ContentPlugin interface {
	// View returns the panes shown in the tab. Never nil.
	View() View

	// DefaultPath returns the file the plugin edits when none is given.
	DefaultPath() (string, bool)

	// Open replaces the content with the file at path.
	Open(path string) error

	// Save writes the content to path.
	Save(path string) error

	Content() string
	SetContent(content string)

	Initialize() error
	Destroy() error
}

// BasePlugin provides no-op lifecycle hooks and no default path. Embed it
// to implement only what a plugin needs.
type BasePlugin struct{}

func (BasePlugin) Initialize() error           { return nil }
func (BasePlugin) Destroy() error              { return nil }
func (BasePlugin) DefaultPath() (string, bool) { return "", false }

// Environment is handed to a plugin constructor.
type Environment struct {
	// Logger is scoped with the plugin type and, for live instances, the
	// instance id.
	Logger Logger

	// Dispatcher is the interactive thread. Analysis results must be
	// applied through it.
	Dispatcher Dispatcher

	Metrics MetricsCollector

	// DebounceWindow is the quiet period for analysis pipelines.
	DebounceWindow time.Duration

	TypeID     string
	InstanceID string
}

// Probe reports whether the environment belongs to a catalog probe, which
// is constructed and destroyed without ever being initialized.
func (e Environment) Probe() bool {
	return e.InstanceID == ""
}

// NewPipelineConfig fills a PipelineConfig from the environment.
func (e Environment) NewPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:           name,
		DebounceWindow: e.DebounceWindow,
		Dispatcher:     e.Dispatcher,
		Logger:         e.Logger,
		Metrics:        e.Metrics,
	}
}

func (e Environment) withDefaults() Environment {
	if e.Logger == nil {
		e.Logger = DefaultLogger()
	}
	if e.Dispatcher == nil {
		e.Dispatcher = InlineDispatcher{}
	}
	if e.Metrics == nil {
		e.Metrics = NoOpMetricsCollector{}
	}
	if e.DebounceWindow <= 0 {
		e.DebounceWindow = DefaultDebounceWindow
	}
	return e
}

// ReadTextFile reads path in a single attempt, reporting failures as IO
// errors.
func ReadTextFile(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path chosen by the user
	if err != nil {
		return "", NewIOError("open", path, err)
	}
	return string(data), nil
}

// WriteTextFile writes content to path, keeping the mode of an existing
// file.
func WriteTextFile(path, content string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return NewIOError("save", path, err)
	}
	return nil
}
