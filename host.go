// host.go: wiring of discovery, catalog, installation and instances
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
)

// Host assembles the plugin runtime for a shell: it discovers descriptors,
// builds the catalog, owns installation state and the live instances, and
// runs the interactive thread.
type Host struct {
	config   HostConfig
	logger   Logger
	metrics  MetricsCollector
	types    *TypeRegistry
	source   DescriptorSource
	env      Environment
	loop     *EventLoop
	dispatch Dispatcher

	installs  *InstallationRegistry
	instances *InstanceManager
	watcher   *DescriptorWatcher

	rediscoverMu sync.Mutex
	shutdown     atomic.Bool
}

// HostOption customises NewHost.
type HostOption func(*hostOptions)

type hostOptions struct {
	dispatcher Dispatcher
	metrics    MetricsCollector
	store      InstallationStore
}

// WithDispatcher replaces the host's own event loop.
func WithDispatcher(d Dispatcher) HostOption {
	return func(o *hostOptions) { o.dispatcher = d }
}

// WithMetricsCollector overrides the collector chosen from the config.
func WithMetricsCollector(m MetricsCollector) HostOption {
	return func(o *hostOptions) { o.metrics = m }
}

// WithInstallationStore overrides the store chosen from the config.
func WithInstallationStore(s InstallationStore) HostOption {
	return func(o *hostOptions) { o.store = s }
}

// NewHost builds a ready host. source supplies descriptors unless
// config.DescriptorPath names a file, which then takes precedence.
func NewHost(config HostConfig, types *TypeRegistry, source DescriptorSource, opts ...HostOption) (*Host, error) {
	setHostConfigDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := hostOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if types == nil {
		types = NewTypeRegistry()
	}

	h := &Host{
		config: config,
		logger: config.Logger,
		types:  types,
		source: source,
	}

	switch {
	case o.metrics != nil:
		h.metrics = o.metrics
	case config.Metrics.Enabled:
		h.metrics = NewPrometheusMetricsCollector(config.Metrics.Namespace)
	default:
		h.metrics = NewDefaultMetricsCollector()
	}

	if config.DescriptorPath != "" {
		h.source = FileDescriptorSource{Path: config.DescriptorPath}
	}

	if o.dispatcher != nil {
		h.dispatch = o.dispatcher
	} else {
		h.loop = NewEventLoop(h.logger.With("component", "event_loop")).WithMetrics(h.metrics)
		h.loop.Start()
		h.dispatch = h.loop
	}

	h.env = Environment{
		Logger:         h.logger,
		Dispatcher:     h.dispatch,
		Metrics:        h.metrics,
		DebounceWindow: config.DebounceWindow,
	}

	store := o.store
	if store == nil {
		if config.StateFile != "" {
			store = NewFileInstallationStore(config.StateFile)
		} else {
			store = NewMemoryInstallationStore()
		}
	}

	catalog := h.buildCatalog()
	h.installs = NewInstallationRegistry(catalog, InstallationConfig{
		Logger:      h.logger.With("component", "installation_registry"),
		Metrics:     h.metrics,
		Store:       store,
		Environment: h.env,
	})
	h.instances = NewInstanceManager(h.installs, InstanceManagerConfig{
		Logger:         h.logger.With("component", "instance_manager"),
		Dispatcher:     h.dispatch,
		Metrics:        h.metrics,
		DebounceWindow: config.DebounceWindow,
	})
	h.installs.Seed(config.AutoInstall, config.InstallAllOnStartup)

	if config.WatchDescriptors {
		h.watcher = NewDescriptorWatcher(config.DescriptorPath, DescriptorWatcherOptions{
			PollInterval: config.WatchInterval,
			Logger:       h.logger,
			AuditFile:    config.AuditFile,
		}, func(string) { h.Rediscover() })
		if err := h.watcher.Start(); err != nil {
			h.stopLoop(context.Background())
			return nil, err
		}
	}

	h.logger.Info("Plugin host ready",
		"types", catalog.Len(),
		"installed", len(h.installs.InstalledTypes()),
		"descriptor_source", h.sourceLocation())
	return h, nil
}

func (h *Host) sourceLocation() string {
	if h.source == nil {
		return ""
	}
	return h.source.Location()
}

func (h *Host) buildCatalog() *Catalog {
	descs := LoadDescriptors(h.source, h.logger)
	h.metrics.RecordCustomMetric(MetricCatalogSource, nil, h.sourceLocation())
	return BuildCatalog(descs, h.types,
		WithCatalogLogger(h.logger.With("component", "catalog")),
		WithCatalogMetrics(h.metrics),
		WithProbeEnvironment(h.env))
}

// Catalog returns the current catalog.
func (h *Host) Catalog() *Catalog { return h.installs.Catalog() }

func (h *Host) Installations() *InstallationRegistry { return h.installs }
func (h *Host) Instances() *InstanceManager          { return h.instances }
func (h *Host) Dispatcher() Dispatcher               { return h.dispatch }
func (h *Host) Metrics() MetricsCollector            { return h.metrics }
func (h *Host) Logger() Logger                       { return h.logger }
func (h *Host) Config() HostConfig                   { return h.config }

// Rediscover reloads the descriptors and swaps in a new catalog.
// Installation state is kept by type id and live instances are untouched.
func (h *Host) Rediscover() *Catalog {
	h.rediscoverMu.Lock()
	defer h.rediscoverMu.Unlock()

	catalog := h.buildCatalog()
	h.installs.attachCatalog(catalog)
	h.logger.Info("Plugin catalog re-discovered",
		"types", catalog.Len(),
		"diagnostics", len(catalog.Diagnostics()))
	return catalog
}

// OpenTab creates an instance of pt in a new context and, when path is
// not empty, opens the file in it. Nothing is left behind on failure.
func (h *Host) OpenTab(pt *PluginType, path string) (ContextID, *Instance, error) {
	if h.shutdown.Load() {
		return "", nil, NewHostShutdownError()
	}
	inst, err := h.instances.CreateInstance(pt)
	if err != nil {
		return "", nil, err
	}
	if path != "" {
		if err := callGuarded(func() error { return inst.plugin.Open(path) }); err != nil {
			_ = h.instances.Discard(inst)
			return "", nil, err
		}
	}
	ctx := NewContextID()
	if err := h.instances.Bind(ctx, inst); err != nil {
		_ = h.instances.Discard(inst)
		return "", nil, err
	}
	return ctx, inst, nil
}

// OpenFile opens path with the first installed type that handles it.
func (h *Host) OpenFile(path string) (ContextID, *Instance, error) {
	candidates := h.Catalog().TypesForPath(path)
	if len(candidates) == 0 {
		return "", nil, NewTypeResolutionError(path)
	}
	for _, pt := range candidates {
		if h.installs.IsInstalled(pt) {
			return h.OpenTab(pt, path)
		}
	}
	return "", nil, NewNotInstalledError(candidates[0].ID())
}

// SaveTab saves the content of the tab to path, or to the plugin's
// default path when path is empty.
func (h *Host) SaveTab(ctx ContextID, path string) error {
	inst, ok := h.instances.Lookup(ctx)
	if !ok {
		return NewInstanceReleasedError(string(ctx))
	}
	if path == "" {
		p, ok := inst.plugin.DefaultPath()
		if !ok {
			return NewIOError("save", "", stderrors.New("no path given and plugin has no default path"))
		}
		path = p
	}
	return callGuarded(func() error { return inst.plugin.Save(path) })
}

// CloseTab releases the instance bound to ctx.
func (h *Host) CloseTab(ctx ContextID) {
	h.instances.Release(ctx)
}

// Shutdown stops the watcher, destroys every live instance and stops the
// event loop, waiting for it until ctx is done.
func (h *Host) Shutdown(ctx context.Context) error {
	if !h.shutdown.CompareAndSwap(false, true) {
		return NewHostShutdownError()
	}
	h.logger.Info("Shutting down plugin host")

	if h.watcher != nil {
		if err := h.watcher.Stop(); err != nil {
			h.logger.Warn("Failed to stop descriptor watcher", "error", err)
		}
	}
	h.instances.ReleaseAll()
	h.stopLoop(ctx)

	h.logger.Info("Plugin host shutdown complete")
	return nil
}

func (h *Host) stopLoop(ctx context.Context) {
	if h.loop == nil {
		return
	}
	h.loop.Stop()
	select {
	case <-h.loop.Done():
	case <-ctx.Done():
		h.logger.Warn("Shutdown timeout reached, event loop still running")
	}
}
