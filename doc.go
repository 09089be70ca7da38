// Package devtools hosts editor content plugins inside tabs of a developer
// tools shell. It discovers the available plugin types from a descriptor
// resource, tracks which of them are installed, creates one isolated
// instance per tab and keeps syntax highlighting and previews current
// through debounced, latest-wins background analysis.
//
// Key Features:
//   - Descriptor driven discovery with per-entry diagnostics
//   - Capability verification of every plugin type before it is offered
//   - Installation state with optional YAML persistence
//   - Exactly-once teardown of plugin instances
//   - Debounced analysis pipelines whose stale results are never applied
//   - Hot re-discovery when the descriptor file changes (argus)
//   - Structured errors, pluggable logging and Prometheus metrics
//
// Basic Usage:
//
//	types := devtools.NewTypeRegistry()
//	if err := builtin.Register(types); err != nil {
//		log.Fatal(err)
//	}
//
//	host, err := devtools.NewHostBuilder().
//		WithTypes(types).
//		WithDescriptors(builtin.Descriptors()).
//		WithAutoInstall("JsonFormatPlugin").
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer host.Shutdown(context.Background())
//
//	tab, inst, err := host.OpenFile("payload.json")
//
// Threading:
// Plugin hooks run on the caller's goroutine. Analysis runs on one worker
// goroutine per pipeline and results are applied through the host's
// Dispatcher, a single event loop unless another is supplied.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package devtools
