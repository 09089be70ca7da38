// installation_store.go: persistence of plugin installation state
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// InstallationStore loads and saves the installed flag per type id.
type InstallationStore interface {
	Load() (map[string]bool, error)
	Save(states map[string]bool) error
}

// MemoryInstallationStore keeps state for the lifetime of the process.
type MemoryInstallationStore struct {
	mu     sync.Mutex
	states map[string]bool
}

func NewMemoryInstallationStore() *MemoryInstallationStore {
	return &MemoryInstallationStore{states: make(map[string]bool)}
}

func (m *MemoryInstallationStore) Load() (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyStates(m.states), nil
}

func (m *MemoryInstallationStore) Save(states map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = copyStates(states)
	return nil
}

// FileInstallationStore persists state as a YAML document:
//
//	plugins:
//	  - id: JsonFormatPlugin
//	    installed: true
type FileInstallationStore struct {
	Path string

	mu sync.Mutex
}

type stateDocument struct {
	Plugins []stateEntry `yaml:"plugins"`
}

type stateEntry struct {
	ID        string `yaml:"id"`
	Installed bool   `yaml:"installed"`
}

func NewFileInstallationStore(path string) *FileInstallationStore {
	return &FileInstallationStore{Path: path}
}

// Load returns an empty map when the file does not exist yet.
func (f *FileInstallationStore) Load() (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(filepath.Clean(f.Path))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, NewStateStoreError(f.Path, err)
	}
	var doc stateDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewStateStoreError(f.Path, err)
	}
	states := make(map[string]bool, len(doc.Plugins))
	for _, e := range doc.Plugins {
		if e.ID != "" {
			states[e.ID] = e.Installed
		}
	}
	return states, nil
}

// Save writes atomically through a temporary file in the same directory.
func (f *FileInstallationStore) Save(states map[string]bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	doc := stateDocument{Plugins: make([]stateEntry, 0, len(ids))}
	for _, id := range ids {
		doc.Plugins = append(doc.Plugins, stateEntry{ID: id, Installed: states[id]})
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return NewStateStoreError(f.Path, err)
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return NewStateStoreError(f.Path, err)
	}
	tmp, err := os.CreateTemp(dir, ".devtools-state-*")
	if err != nil {
		return NewStateStoreError(f.Path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return NewStateStoreError(f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return NewStateStoreError(f.Path, err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		_ = os.Remove(tmpName)
		return NewStateStoreError(f.Path, err)
	}
	return nil
}

func copyStates(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
