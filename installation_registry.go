// installation_registry.go: installed/uninstalled state machine per plugin type
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"sync"

	"github.com/agilira/go-timecache"
)

// InstallationConfig configures an InstallationRegistry.
type InstallationConfig struct {
	Logger  Logger
	Metrics MetricsCollector

	// Store persists state across runs. Defaults to an in-memory store.
	Store InstallationStore

	// Environment is handed to the trial instance built by Install.
	Environment Environment
}

func setInstallationDefaults(cfg *InstallationConfig) {
	if cfg.Logger == nil {
		cfg.Logger = DefaultLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoOpMetricsCollector{}
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryInstallationStore()
	}
	if cfg.Environment.Logger == nil {
		cfg.Environment.Logger = cfg.Logger
	}
	if cfg.Environment.Metrics == nil {
		cfg.Environment.Metrics = cfg.Metrics
	}
}

// InstallationRegistry owns the installed flag of every catalog type. It is
// the only writer of that state. Types start uninstalled unless the store
// remembers otherwise; entries are never removed, only flipped.
type InstallationRegistry struct {
	logger  Logger
	metrics MetricsCollector
	store   InstallationStore
	env     Environment

	// opMu serialises transitions so plugin hooks can run outside mu.
	opMu sync.Mutex

	mu        sync.RWMutex
	catalog   *Catalog
	states    map[string]bool
	persisted map[string]bool // as loaded at startup
	instances *InstanceManager

	events *eventBus[InstallationEvent]
}

// NewInstallationRegistry seeds state for every type of catalog, applying
// persisted state where the store has an entry.
func NewInstallationRegistry(catalog *Catalog, cfg InstallationConfig) *InstallationRegistry {
	setInstallationDefaults(&cfg)

	persisted, err := cfg.Store.Load()
	if err != nil {
		cfg.Logger.Warn("Failed to load installation state, starting with defaults",
			"error", err)
		persisted = map[string]bool{}
	}

	r := &InstallationRegistry{
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		store:     cfg.Store,
		env:       cfg.Environment,
		states:    make(map[string]bool),
		persisted: persisted,
		events:    newEventBus[InstallationEvent](cfg.Logger),
	}
	for id, installed := range persisted {
		r.states[id] = installed
	}
	r.attachCatalog(catalog)
	return r
}

// attachCatalog switches to a re-discovered catalog. New types appear with
// their persisted state or uninstalled; vanished types keep their entry
// but can no longer be installed or instantiated.
func (r *InstallationRegistry) attachCatalog(c *Catalog) {
	if c == nil {
		c = BuildCatalog(nil, nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = c
	for _, pt := range c.types {
		if _, ok := r.states[pt.id]; !ok {
			r.states[pt.id] = false
		}
	}
}

func (r *InstallationRegistry) attachInstances(m *InstanceManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = m
}

// Catalog returns the catalog the registry currently serves.
func (r *InstallationRegistry) Catalog() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Install verifies that pt can be constructed and initialized, then marks
// it installed. Installing an installed type does nothing. Subscribers are
// notified after the transition completes.
func (r *InstallationRegistry) Install(pt *PluginType) error {
	if pt == nil {
		return NewTypeResolutionError("")
	}
	r.opMu.Lock()
	changed, err := r.install(pt)
	r.opMu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		r.emit(Installed, pt.id)
		r.logger.Info("Plugin installed", "plugin_type", pt.id)
	}
	return nil
}

// caller holds r.opMu
func (r *InstallationRegistry) install(pt *PluginType) (bool, error) {
	r.mu.RLock()
	current, known := r.catalog.Lookup(pt.id)
	installed := r.states[pt.id]
	r.mu.RUnlock()

	if !known {
		return false, NewTypeResolutionError(pt.id)
	}
	if installed {
		return false, nil
	}

	env := r.env
	env.TypeID = current.id
	env.InstanceID = "install:" + current.id
	env.Logger = r.logger.With("plugin_type", current.id, "phase", "install")
	env = env.withDefaults()

	plugin, err := current.instantiate(env)
	if err != nil {
		return false, err
	}
	initErr := callGuarded(plugin.Initialize)
	if derr := callGuarded(plugin.Destroy); derr != nil {
		r.logger.Warn("Install trial instance destroy failed",
			"plugin_type", current.id,
			"error", derr)
	}
	if initErr != nil {
		return false, NewPluginInitFailedError(current.id, initErr)
	}

	r.mu.Lock()
	r.states[current.id] = true
	snapshot := copyStates(r.states)
	r.mu.Unlock()

	r.persist(snapshot)
	return true, nil
}

// Uninstall marks pt uninstalled, which blocks new instances immediately,
// then revokes the live ones. Uninstalling an uninstalled type does
// nothing.
func (r *InstallationRegistry) Uninstall(pt *PluginType) error {
	if pt == nil {
		return NewTypeResolutionError("")
	}
	r.opMu.Lock()
	r.mu.Lock()
	if !r.states[pt.id] {
		r.mu.Unlock()
		r.opMu.Unlock()
		return nil
	}
	r.states[pt.id] = false
	snapshot := copyStates(r.states)
	instances := r.instances
	r.mu.Unlock()

	revoked := 0
	if instances != nil {
		revoked = instances.revokeType(pt.id)
	}
	r.persist(snapshot)
	r.opMu.Unlock()

	r.emit(Uninstalled, pt.id)
	r.logger.Info("Plugin uninstalled",
		"plugin_type", pt.id,
		"revoked_instances", revoked)
	return nil
}

// Seed applies startup installation policy to types that have no
// persisted state: the listed ids are installed, or every type when all
// is set. Failures are logged and skipped.
func (r *InstallationRegistry) Seed(ids []string, all bool) {
	catalog := r.Catalog()

	var targets []*PluginType
	if all {
		targets = catalog.Types()
	} else {
		for _, id := range ids {
			pt, ok := catalog.Lookup(id)
			if !ok {
				r.logger.Warn("Auto-install skipped unknown plugin type", "plugin_type", id)
				continue
			}
			targets = append(targets, pt)
		}
	}

	for _, pt := range targets {
		r.mu.RLock()
		_, remembered := r.persisted[pt.id]
		r.mu.RUnlock()
		if remembered {
			continue
		}
		if err := r.Install(pt); err != nil {
			r.logger.Warn("Auto-install failed",
				"plugin_type", pt.id,
				"error", err)
		}
	}
}

// IsInstalled reports whether pt is installed and still offered by the
// current catalog.
func (r *InstallationRegistry) IsInstalled(pt *PluginType) bool {
	if pt == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, known := r.catalog.Lookup(pt.id); !known {
		return false
	}
	return r.states[pt.id]
}

// InstalledTypes returns the installed types in catalog order.
func (r *InstallationRegistry) InstalledTypes() []*PluginType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PluginType, 0, len(r.catalog.types))
	for _, pt := range r.catalog.types {
		if r.states[pt.id] {
			out = append(out, pt)
		}
	}
	return out
}

// States returns a copy of the installed flag per type id, including
// types no longer in the catalog.
func (r *InstallationRegistry) States() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyStates(r.states)
}

// Subscribe registers fn for installation transitions.
func (r *InstallationRegistry) Subscribe(fn func(InstallationEvent)) (cancel func()) {
	return r.events.subscribe(fn)
}

func (r *InstallationRegistry) persist(states map[string]bool) {
	if err := r.store.Save(states); err != nil {
		r.logger.Warn("Failed to persist installation state", "error", err)
	}
}

func (r *InstallationRegistry) emit(kind InstallationEventKind, typeID string) {
	r.metrics.IncrementCounter(MetricInstallationEvents,
		map[string]string{"kind": kind.String(), "plugin_type": typeID}, 1)
	r.events.publish(InstallationEvent{
		Kind:   kind,
		TypeID: typeID,
		At:     timecache.CachedTime(),
	})
}
