// host_builder.go: fluent construction of a plugin host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// HostBuilder provides a fluent interface for building a Host.
//
//	host, err := NewHostBuilder().
//	    WithPlugin("JsonFormatPlugin", info, ctor).
//	    WithDescriptors(StaticDescriptorSource{{Identifier: "JsonFormatPlugin"}}).
//	    WithAutoInstall("JsonFormatPlugin").
//	    Build()
type HostBuilder struct {
	config  HostConfig
	types   *TypeRegistry
	source  DescriptorSource
	options []HostOption
	errors  []error
}

// NewHostBuilder starts from DefaultHostConfig and an empty type registry.
func NewHostBuilder() *HostBuilder {
	return &HostBuilder{
		config: HostConfig{},
		types:  NewTypeRegistry(),
	}
}

// Headless returns a builder whose results are applied inline on the
// calling goroutine, for command line tools and tests.
func Headless() *HostBuilder {
	return NewHostBuilder().WithDispatcher(InlineDispatcher{})
}

// FromConfig starts from a loaded configuration.
func (b *HostBuilder) FromConfig(cfg HostConfig) *HostBuilder {
	logger := b.config.Logger
	b.config = cfg
	if b.config.Logger == nil {
		b.config.Logger = logger
	}
	return b
}

// WithTypes replaces the builder's registry with an existing one.
func (b *HostBuilder) WithTypes(r *TypeRegistry) *HostBuilder {
	if r == nil {
		b.errors = append(b.errors, errors.New("type registry cannot be nil"))
		return b
	}
	b.types = r
	return b
}

// WithRegistration runs fn against the builder's registry, e.g. a plugin
// package's Register function.
func (b *HostBuilder) WithRegistration(fn func(*TypeRegistry) error) *HostBuilder {
	if err := fn(b.types); err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

// WithPlugin registers one plugin type.
func (b *HostBuilder) WithPlugin(id string, info TypeInfo, ctor Constructor) *HostBuilder {
	if err := b.types.Register(id, info, ctor); err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

func (b *HostBuilder) WithDescriptors(src DescriptorSource) *HostBuilder {
	b.source = src
	return b
}

// WithDescriptorFS reads name from fsys, typically an embed.FS.
func (b *HostBuilder) WithDescriptorFS(fsys fs.FS, name string) *HostBuilder {
	b.source = FSDescriptorSource{FS: fsys, Name: name}
	return b
}

// WithDescriptorFile uses an on-disk descriptor file, optionally watched
// for changes.
func (b *HostBuilder) WithDescriptorFile(path string, watch bool) *HostBuilder {
	b.config.DescriptorPath = path
	b.config.WatchDescriptors = watch
	return b
}

func (b *HostBuilder) WithLogger(logger Logger) *HostBuilder {
	b.config.Logger = logger
	return b
}

func (b *HostBuilder) WithDebounce(window time.Duration) *HostBuilder {
	if window <= 0 {
		b.errors = append(b.errors, fmt.Errorf("debounce window must be positive, got %v", window))
		return b
	}
	b.config.DebounceWindow = window
	return b
}

func (b *HostBuilder) WithStateFile(path string) *HostBuilder {
	b.config.StateFile = path
	return b
}

func (b *HostBuilder) WithAutoInstall(ids ...string) *HostBuilder {
	b.config.AutoInstall = append(b.config.AutoInstall, ids...)
	return b
}

// InstallAll installs every catalog type at startup.
func (b *HostBuilder) InstallAll() *HostBuilder {
	b.config.InstallAllOnStartup = true
	return b
}

// WithPrometheus selects the Prometheus metrics collector.
func (b *HostBuilder) WithPrometheus(namespace string) *HostBuilder {
	b.config.Metrics.Enabled = true
	b.config.Metrics.Namespace = namespace
	return b
}

func (b *HostBuilder) WithMetrics(m MetricsCollector) *HostBuilder {
	b.options = append(b.options, WithMetricsCollector(m))
	return b
}

func (b *HostBuilder) WithDispatcher(d Dispatcher) *HostBuilder {
	b.options = append(b.options, WithDispatcher(d))
	return b
}

func (b *HostBuilder) WithInstallationStore(s InstallationStore) *HostBuilder {
	b.options = append(b.options, WithInstallationStore(s))
	return b
}

// Build validates the accumulated settings and creates the host.
func (b *HostBuilder) Build() (*Host, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	return NewHost(b.config, b.types, b.source, b.options...)
}
