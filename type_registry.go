// type_registry.go: compile-time table of constructible plugin types
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Constructor builds a fresh plugin value. The catalog checks afterwards
// that the value really is a ContentPlugin, so a constructor may return
// anything.
type Constructor func(env Environment) (any, error)

// TypeInfo describes a plugin type for the shell.
type TypeInfo struct {
	DisplayName string
	Description string

	// Extensions lists the file suffixes (".json") or exact base names
	// ("hosts") the plugin can open.
	Extensions []string
}

// handles reports whether path matches one of the extensions.
func (ti TypeInfo) handles(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ti.Extensions {
		e = strings.ToLower(e)
		if strings.HasPrefix(e, ".") {
			if e == ext {
				return true
			}
		} else if e == base {
			return true
		}
	}
	return false
}

type registration struct {
	id   string
	info TypeInfo
	ctor Constructor
}

// TypeRegistry maps descriptor identifiers to constructors. Applications
// fill it at startup with every plugin type linked into the binary; the
// catalog resolves descriptor identifiers against it.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]registration
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]registration)}
}

// Register adds a type. Empty or already used identifiers are rejected.
func (r *TypeRegistry) Register(id string, info TypeInfo, ctor Constructor) error {
	if strings.TrimSpace(id) == "" {
		return NewTypeRegistrationError(id, "Plugin type identifier cannot be empty")
	}
	if ctor == nil {
		return NewTypeRegistrationError(id, "Plugin constructor cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[id]; exists {
		return NewTypeRegistrationError(id, "Plugin type already registered")
	}
	if info.DisplayName == "" {
		info.DisplayName = id
	}
	r.types[id] = registration{id: id, info: info, ctor: ctor}
	return nil
}

// RegisterPlugin registers a constructor returning a concrete plugin type.
func RegisterPlugin[T ContentPlugin](r *TypeRegistry, id string, info TypeInfo, ctor func(env Environment) (T, error)) error {
	if ctor == nil {
		return NewTypeRegistrationError(id, "Plugin constructor cannot be nil")
	}
	return r.Register(id, info, func(env Environment) (any, error) {
		p, err := ctor(env)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func (r *TypeRegistry) resolve(id string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[id]
	return reg, ok
}

// Resolve returns the description registered under id.
func (r *TypeRegistry) Resolve(id string) (TypeInfo, bool) {
	reg, ok := r.resolve(id)
	return reg.info, ok
}

// Has reports whether id is registered.
func (r *TypeRegistry) Has(id string) bool {
	_, ok := r.resolve(id)
	return ok
}

// IDs returns the registered identifiers, sorted.
func (r *TypeRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
