// app.go: host construction for the devtools command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	devtools "github.com/agilira/devtools"
	"github.com/agilira/devtools/plugins/builtin"
)

const shutdownTimeout = 5 * time.Second

// app carries the global flags and the lazily built host.
type app struct {
	out io.Writer

	configPath     string
	descriptorPath string
	statePath      string
	debug          bool

	config *devtools.HostConfig
	host   *devtools.Host
}

func newApp(out io.Writer) *app {
	return &app{out: out}
}

// loadConfig merges the config file, if any, with the command line flags.
func (a *app) loadConfig() (devtools.HostConfig, error) {
	cfg := devtools.DefaultHostConfig()
	if a.configPath != "" {
		loaded, err := devtools.LoadHostConfig(a.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if a.descriptorPath != "" {
		cfg.DescriptorPath = a.descriptorPath
	}
	switch {
	case a.statePath != "":
		cfg.StateFile = a.statePath
	case cfg.StateFile == "":
		cfg.StateFile = defaultStatePath()
	}
	if a.debug {
		cfg.LogLevel = "debug"
	}
	// One-shot commands never watch.
	cfg.WatchDescriptors = false
	cfg.AuditFile = ""

	level := devtools.ParseLogLevel(cfg.LogLevel)
	cfg.Logger = devtools.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// defaultStatePath keeps installation state under the user config
// directory, or next to the working directory when there is none.
func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".devtools-state.yaml"
	}
	return filepath.Join(dir, "devtools", "state.yaml")
}

// start builds the host on first use.
func (a *app) start() (*devtools.Host, error) {
	if a.host != nil {
		return a.host, nil
	}
	if a.config == nil {
		cfg, err := a.loadConfig()
		if err != nil {
			return nil, err
		}
		a.config = &cfg
	}
	cfg := *a.config
	if dir := filepath.Dir(cfg.StateFile); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, devtools.NewStateStoreError(cfg.StateFile, err)
		}
	}
	host, err := devtools.NewHostBuilder().
		FromConfig(cfg).
		WithRegistration(builtin.Register).
		WithDescriptors(builtin.Descriptors()).
		Build()
	if err != nil {
		return nil, err
	}
	a.host = host
	return host, nil
}

func (a *app) close() {
	if a.host == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = a.host.Shutdown(ctx)
	a.host = nil
}

// lookupType resolves id against the current catalog.
func (a *app) lookupType(id string) (*devtools.PluginType, error) {
	host, err := a.start()
	if err != nil {
		return nil, err
	}
	pt, ok := host.Catalog().Lookup(id)
	if !ok {
		return nil, devtools.NewTypeResolutionError(id)
	}
	return pt, nil
}
