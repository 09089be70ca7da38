// instance_manager.go: per-context plugin instances with exactly-once teardown
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// ContextID identifies a tab or other hosting context.
type ContextID string

// NewContextID returns a fresh random context identifier.
func NewContextID() ContextID {
	return ContextID(uuid.New().String())
}

// Instance is one live plugin object. It is destroyed at most once.
type Instance struct {
	id         string
	pluginType *PluginType
	plugin     ContentPlugin
	createdAt  time.Time

	destroyOnce sync.Once
	destroyed   atomic.Bool
	destroyErr  error
}

func (i *Instance) ID() string             { return i.id }
func (i *Instance) TypeID() string         { return i.pluginType.id }
func (i *Instance) Type() *PluginType      { return i.pluginType }
func (i *Instance) Plugin() ContentPlugin  { return i.plugin }
func (i *Instance) CreatedAt() time.Time   { return i.createdAt }
func (i *Instance) Destroyed() bool        { return i.destroyed.Load() }
func (i *Instance) View() View             { return i.plugin.View() }
func (i *Instance) String() string         { return i.pluginType.id + "/" + i.id }

// destroy runs the plugin's Destroy hook once. Later calls return the
// first call's error.
func (i *Instance) destroy(logger Logger) error {
	i.destroyOnce.Do(func() {
		i.destroyed.Store(true)
		if err := callGuarded(i.plugin.Destroy); err != nil {
			i.destroyErr = err
			logger.Warn("Plugin destroy failed",
				"plugin_type", i.pluginType.id,
				"instance_id", i.id,
				"error", err)
		}
	})
	return i.destroyErr
}

// InstanceManagerConfig configures the environment given to new instances.
type InstanceManagerConfig struct {
	Logger         Logger
	Dispatcher     Dispatcher
	Metrics        MetricsCollector
	DebounceWindow time.Duration
}

// InstanceManager creates plugin instances for installed types and binds
// each to exactly one context. Plugin hooks are invoked outside the
// manager's lock.
type InstanceManager struct {
	registry *InstallationRegistry
	env      Environment
	logger   Logger
	metrics  MetricsCollector

	mu       sync.Mutex
	live     map[string]*Instance
	bindings map[ContextID]*Instance
	boundTo  map[string]ContextID

	events *eventBus[InstanceEvent]
}

// NewInstanceManager creates a manager gated by registry and attaches
// itself so that uninstalling a type revokes its live instances.
func NewInstanceManager(registry *InstallationRegistry, cfg InstanceManagerConfig) *InstanceManager {
	env := Environment{
		Logger:         cfg.Logger,
		Dispatcher:     cfg.Dispatcher,
		Metrics:        cfg.Metrics,
		DebounceWindow: cfg.DebounceWindow,
	}.withDefaults()

	m := &InstanceManager{
		registry: registry,
		env:      env,
		logger:   env.Logger,
		metrics:  env.Metrics,
		live:     make(map[string]*Instance),
		bindings: make(map[ContextID]*Instance),
		boundTo:  make(map[string]ContextID),
		events:   newEventBus[InstanceEvent](env.Logger),
	}
	registry.attachInstances(m)
	return m
}

// CreateInstance constructs and initializes a new, unbound instance of pt.
// Every call yields a distinct object. The type must be installed.
func (m *InstanceManager) CreateInstance(pt *PluginType) (*Instance, error) {
	if pt == nil {
		return nil, NewTypeResolutionError("")
	}
	if !m.registry.IsInstalled(pt) {
		return nil, NewNotInstalledError(pt.id)
	}

	instanceID := uuid.New().String()
	env := m.env
	env.TypeID = pt.id
	env.InstanceID = instanceID
	env.Logger = m.logger.With("plugin_type", pt.id, "instance_id", instanceID)

	plugin, err := pt.instantiate(env)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		id:         instanceID,
		pluginType: pt,
		plugin:     plugin,
		createdAt:  timecache.CachedTime(),
	}
	if err := callGuarded(plugin.Initialize); err != nil {
		_ = inst.destroy(m.logger)
		return nil, NewPluginInitFailedError(pt.id, err)
	}

	// The type may have been uninstalled while the hooks ran.
	m.mu.Lock()
	if !m.registry.IsInstalled(pt) {
		m.mu.Unlock()
		_ = inst.destroy(m.logger)
		return nil, NewNotInstalledError(pt.id)
	}
	m.live[instanceID] = inst
	m.mu.Unlock()

	m.emit(InstanceCreated, "", inst)
	m.logger.Debug("Plugin instance created",
		"plugin_type", pt.id,
		"instance_id", instanceID)
	return inst, nil
}

// Bind associates ctx with inst. A context holds one instance and an
// instance belongs to one context. ctx must not be empty.
func (m *InstanceManager) Bind(ctx ContextID, inst *Instance) error {
	if inst == nil {
		return NewInstanceReleasedError("")
	}
	if ctx == "" {
		return NewInvalidContextError(inst.id)
	}

	m.mu.Lock()
	if inst.Destroyed() || m.live[inst.id] != inst {
		m.mu.Unlock()
		return NewInstanceReleasedError(inst.id)
	}
	if _, taken := m.bindings[ctx]; taken {
		m.mu.Unlock()
		return NewAlreadyBoundError(ctx, inst.id)
	}
	if other, bound := m.boundTo[inst.id]; bound {
		m.mu.Unlock()
		return NewAlreadyBoundError(other, inst.id)
	}
	m.bindings[ctx] = inst
	m.boundTo[inst.id] = ctx
	m.mu.Unlock()

	m.emit(InstanceBound, ctx, inst)
	return nil
}

// Release destroys the instance bound to ctx and forgets the binding.
// Releasing an unknown or already released context does nothing.
func (m *InstanceManager) Release(ctx ContextID) {
	m.mu.Lock()
	inst, ok := m.bindings[ctx]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.bindings, ctx)
	delete(m.boundTo, inst.id)
	delete(m.live, inst.id)
	m.mu.Unlock()

	_ = inst.destroy(m.logger)
	m.emit(InstanceReleased, ctx, inst)
}

// Discard destroys an instance that was created but never bound, for
// example because opening its file failed.
func (m *InstanceManager) Discard(inst *Instance) error {
	if inst == nil {
		return nil
	}
	m.mu.Lock()
	if ctx, bound := m.boundTo[inst.id]; bound {
		m.mu.Unlock()
		return NewAlreadyBoundError(ctx, inst.id)
	}
	_, live := m.live[inst.id]
	delete(m.live, inst.id)
	m.mu.Unlock()

	if !live {
		return nil
	}
	_ = inst.destroy(m.logger)
	m.emit(InstanceDiscarded, "", inst)
	return nil
}

// revokeType destroys every live instance of typeID. Called by the
// installation registry after the type was flipped to uninstalled.
func (m *InstanceManager) revokeType(typeID string) int {
	type revoked struct {
		inst *Instance
		ctx  ContextID
	}
	var victims []revoked

	m.mu.Lock()
	for id, inst := range m.live {
		if inst.pluginType.id != typeID {
			continue
		}
		ctx, bound := m.boundTo[id]
		if bound {
			delete(m.bindings, ctx)
			delete(m.boundTo, id)
		}
		delete(m.live, id)
		victims = append(victims, revoked{inst: inst, ctx: ctx})
	}
	m.mu.Unlock()

	sort.Slice(victims, func(i, j int) bool {
		return victims[i].inst.createdAt.Before(victims[j].inst.createdAt)
	})
	for _, v := range victims {
		_ = v.inst.destroy(m.logger)
		m.emit(InstanceRevoked, v.ctx, v.inst)
	}
	if len(victims) > 0 {
		m.logger.Info("Plugin instances revoked",
			"plugin_type", typeID,
			"count", len(victims))
	}
	return len(victims)
}

// ReleaseAll destroys every live instance, bound or not.
func (m *InstanceManager) ReleaseAll() {
	m.mu.Lock()
	all := make([]*Instance, 0, len(m.live))
	contexts := make(map[string]ContextID, len(m.boundTo))
	for id, inst := range m.live {
		all = append(all, inst)
		if ctx, bound := m.boundTo[id]; bound {
			contexts[id] = ctx
		}
	}
	m.live = make(map[string]*Instance)
	m.bindings = make(map[ContextID]*Instance)
	m.boundTo = make(map[string]ContextID)
	m.mu.Unlock()

	for _, inst := range all {
		_ = inst.destroy(m.logger)
		if ctx, bound := contexts[inst.id]; bound {
			m.emit(InstanceReleased, ctx, inst)
		} else {
			m.emit(InstanceDiscarded, "", inst)
		}
	}
}

func (m *InstanceManager) Lookup(ctx ContextID) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.bindings[ctx]
	return inst, ok
}

// Contexts returns the bound contexts, sorted.
func (m *InstanceManager) Contexts() []ContextID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ContextID, 0, len(m.bindings))
	for ctx := range m.bindings {
		out = append(out, ctx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LiveCount returns the number of created, not yet destroyed instances.
func (m *InstanceManager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Subscribe registers fn for instance lifecycle events. InstanceRevoked is
// delivered while Uninstall is still running, so fn must not call Install
// or Uninstall synchronously.
func (m *InstanceManager) Subscribe(fn func(InstanceEvent)) (cancel func()) {
	return m.events.subscribe(fn)
}

func (m *InstanceManager) emit(kind InstanceEventKind, ctx ContextID, inst *Instance) {
	m.metrics.IncrementCounter(MetricInstanceEvents,
		map[string]string{"kind": kind.String(), "plugin_type": inst.pluginType.id}, 1)
	m.metrics.SetGauge(MetricInstancesLive, nil, float64(m.LiveCount()))
	m.events.publish(InstanceEvent{
		Kind:       kind,
		ContextID:  ctx,
		InstanceID: inst.id,
		TypeID:     inst.pluginType.id,
		At:         timecache.CachedTime(),
	})
}
