// catalog.go: descriptor resolution and capability verification
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"fmt"
	"time"

	"github.com/agilira/go-timecache"
)

// PluginType is a verified, constructible plugin type. Only the catalog
// creates PluginType values, so holding one means the type resolved and
// produced a working ContentPlugin when probed.
type PluginType struct {
	id   string
	info TypeInfo
	ctor Constructor
}

func (pt *PluginType) ID() string     { return pt.id }
func (pt *PluginType) Info() TypeInfo { return pt.info }

// Handles reports whether the type declares support for path.
func (pt *PluginType) Handles(path string) bool {
	return pt.info.handles(path)
}

func (pt *PluginType) String() string {
	return pt.id
}

// instantiate constructs a plugin, turning panics, nil values and contract
// violations into errors.
func (pt *PluginType) instantiate(env Environment) (ContentPlugin, error) {
	var value any
	err := callGuarded(func() error {
		v, err := pt.ctor(env)
		value = v
		return err
	})
	if err != nil {
		return nil, NewInstantiationFailedError(pt.id, err)
	}
	if value == nil {
		return nil, NewInstantiationFailedError(pt.id, nil)
	}
	plugin, ok := value.(ContentPlugin)
	if !ok {
		return nil, NewCapabilityMismatchError(pt.id, fmt.Sprintf("%T does not implement ContentPlugin", value))
	}
	return plugin, nil
}

// Diagnostic records a descriptor excluded from the catalog.
type Diagnostic struct {
	// Index is the descriptor's position in the source list.
	Index      int
	Identifier string
	Err        error
	At         time.Time
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("descriptor #%d %q: %v", d.Index, d.Identifier, d.Err)
}

// Catalog is the immutable result of resolving a descriptor list.
type Catalog struct {
	types       []*PluginType
	byID        map[string]*PluginType
	diagnostics []Diagnostic
	builtAt     time.Time
}

type catalogOptions struct {
	logger  Logger
	metrics MetricsCollector
	env     Environment
}

// CatalogOption customises BuildCatalog.
type CatalogOption func(*catalogOptions)

func WithCatalogLogger(logger Logger) CatalogOption {
	return func(o *catalogOptions) { o.logger = logger }
}

func WithCatalogMetrics(metrics MetricsCollector) CatalogOption {
	return func(o *catalogOptions) { o.metrics = metrics }
}

// WithProbeEnvironment sets the environment handed to probe constructors.
// TypeID and InstanceID are overwritten.
func WithProbeEnvironment(env Environment) CatalogOption {
	return func(o *catalogOptions) { o.env = env }
}

// BuildCatalog resolves every descriptor against registry. Each type is
// probed by constructing one instance, checking it satisfies ContentPlugin
// with a non-nil view, and destroying it without initialization. Failing
// descriptors are excluded with a diagnostic; nothing aborts the build.
// When an identifier appears twice, the first occurrence wins.
func BuildCatalog(descriptors []PluginDescriptor, registry *TypeRegistry, opts ...CatalogOption) *Catalog {
	o := catalogOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = DefaultLogger()
	}
	if o.metrics == nil {
		o.metrics = NoOpMetricsCollector{}
	}
	if registry == nil {
		registry = NewTypeRegistry()
	}

	c := &Catalog{
		types:   make([]*PluginType, 0, len(descriptors)),
		byID:    make(map[string]*PluginType, len(descriptors)),
		builtAt: timecache.CachedTime(),
	}
	firstSeen := make(map[string]int, len(descriptors))

	for i, d := range descriptors {
		if first, dup := firstSeen[d.Identifier]; dup && d.Identifier != "" {
			c.exclude(o.logger, i, d.Identifier, NewDuplicateDescriptorError(d.Identifier, first))
			continue
		}
		if d.Identifier != "" {
			firstSeen[d.Identifier] = i
		}

		pt, err := resolveType(d.Identifier, registry, o)
		if err != nil {
			c.exclude(o.logger, i, d.Identifier, err)
			continue
		}
		c.types = append(c.types, pt)
		c.byID[pt.id] = pt
	}

	o.metrics.SetGauge(MetricCatalogTypes, nil, float64(len(c.types)))
	o.metrics.SetGauge(MetricCatalogDiagnostics, nil, float64(len(c.diagnostics)))
	o.logger.Info("Plugin catalog built",
		"descriptors", len(descriptors),
		"types", len(c.types),
		"diagnostics", len(c.diagnostics))
	return c
}

func (c *Catalog) exclude(logger Logger, index int, id string, err error) {
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Index:      index,
		Identifier: id,
		Err:        err,
		At:         timecache.CachedTime(),
	})
	logger.Warn("Plugin descriptor excluded from catalog",
		"index", index,
		"identifier", id,
		"error", err)
}

func resolveType(id string, registry *TypeRegistry, o catalogOptions) (*PluginType, error) {
	if id == "" {
		return nil, NewTypeResolutionError(id)
	}
	reg, ok := registry.resolve(id)
	if !ok {
		return nil, NewTypeResolutionError(id)
	}

	pt := &PluginType{id: reg.id, info: reg.info, ctor: reg.ctor}
	env := o.env
	env.TypeID = id
	env.InstanceID = ""
	if env.Logger == nil {
		env.Logger = o.logger
	}
	env.Logger = env.Logger.With("plugin_type", id, "probe", true)
	env = env.withDefaults()

	plugin, err := pt.instantiate(env)
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := callGuarded(plugin.Destroy); derr != nil {
			o.logger.Warn("Probe instance destroy failed",
				"plugin_type", id,
				"error", derr)
		}
	}()

	var view View
	if verr := callGuarded(func() error {
		view = plugin.View()
		return nil
	}); verr != nil {
		return nil, NewCapabilityMismatchError(id, "View panicked: "+verr.Error())
	}
	if view == nil {
		return nil, NewCapabilityMismatchError(id, "View returned nil")
	}
	return pt, nil
}

// Types returns the verified types in descriptor order.
func (c *Catalog) Types() []*PluginType {
	out := make([]*PluginType, len(c.types))
	copy(out, c.types)
	return out
}

func (c *Catalog) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

func (c *Catalog) Lookup(id string) (*PluginType, bool) {
	pt, ok := c.byID[id]
	return pt, ok
}

// Contains reports whether pt is this catalog's type for its identifier.
func (c *Catalog) Contains(pt *PluginType) bool {
	if pt == nil {
		return false
	}
	_, ok := c.byID[pt.id]
	return ok
}

// TypesForPath returns the types able to open path, in catalog order.
func (c *Catalog) TypesForPath(path string) []*PluginType {
	var out []*PluginType
	for _, pt := range c.types {
		if pt.Handles(path) {
			out = append(out, pt)
		}
	}
	return out
}

func (c *Catalog) Len() int { return len(c.types) }

func (c *Catalog) BuiltAt() time.Time { return c.builtAt }
