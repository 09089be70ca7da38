// descriptor.go: plugin descriptor resource loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// PluginDescriptor names one plugin type to load.
type PluginDescriptor struct {
	Identifier string `json:"pluginClass" yaml:"pluginClass"`
}

// DescriptorSource yields the ordered list of plugin descriptors.
type DescriptorSource interface {
	Load() ([]PluginDescriptor, error)

	// Location identifies the source in logs and errors.
	Location() string
}

// FSDescriptorSource reads a JSON descriptor resource from a file system,
// typically an embed.FS bundled with the application.
type FSDescriptorSource struct {
	FS   fs.FS
	Name string
}

func (s FSDescriptorSource) Location() string {
	return "fs:" + s.Name
}

func (s FSDescriptorSource) Load() ([]PluginDescriptor, error) {
	if s.FS == nil {
		return nil, NewDescriptorMissingError(s.Location(), nil)
	}
	data, err := fs.ReadFile(s.FS, s.Name)
	if err != nil {
		return nil, NewDescriptorMissingError(s.Location(), err)
	}
	return parseDescriptorJSON(s.Location(), data)
}

// FileDescriptorSource reads descriptors from a file on disk. JSON is the
// canonical format; .yaml and .yml files are decoded as YAML.
type FileDescriptorSource struct {
	Path string
}

func (s FileDescriptorSource) Location() string {
	return s.Path
}

func (s FileDescriptorSource) Load() ([]PluginDescriptor, error) {
	data, err := os.ReadFile(filepath.Clean(s.Path))
	if err != nil {
		return nil, NewDescriptorMissingError(s.Path, err)
	}

	switch format := argus.DetectFormat(s.Path); format {
	case argus.FormatYAML:
		return parseDescriptorYAML(s.Path, data)
	case argus.FormatJSON:
		return parseDescriptorJSON(s.Path, data)
	default:
		// Extensionless descriptor files are treated as JSON.
		return parseDescriptorJSON(s.Path, data)
	}
}

// StaticDescriptorSource serves a fixed list. Useful for embedding hosts
// and tests.
type StaticDescriptorSource []PluginDescriptor

func (s StaticDescriptorSource) Location() string { return "static" }

func (s StaticDescriptorSource) Load() ([]PluginDescriptor, error) {
	out := make([]PluginDescriptor, len(s))
	copy(out, s)
	return out, nil
}

// parseDescriptorJSON requires a JSON array of objects. A record without
// pluginClass is kept with an empty identifier so the catalog can report
// it.
func parseDescriptorJSON(location string, data []byte) ([]PluginDescriptor, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, NewDescriptorParseError(location, stderrors.New("descriptor resource is not a JSON array"))
	}
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, NewDescriptorParseError(location, err)
	}

	out := make([]PluginDescriptor, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			return nil, NewDescriptorParseError(location, stderrors.New("descriptor record is not an object"))
		}
		var id string
		if raw, ok := rec["pluginClass"]; ok {
			if err := json.Unmarshal(raw, &id); err != nil {
				return nil, NewDescriptorParseError(location, err)
			}
		}
		out = append(out, PluginDescriptor{Identifier: id})
	}
	return out, nil
}

func parseDescriptorYAML(location string, data []byte) ([]PluginDescriptor, error) {
	var records []PluginDescriptor
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, NewDescriptorParseError(location, err)
	}
	if records == nil {
		return []PluginDescriptor{}, nil
	}
	return records, nil
}

// LoadDescriptors loads src and never fails: a missing or malformed
// resource is logged and yields no descriptors, leaving the host usable
// with zero plugins.
func LoadDescriptors(src DescriptorSource, logger Logger) []PluginDescriptor {
	if logger == nil {
		logger = DefaultLogger()
	}
	if src == nil {
		logger.Warn("No plugin descriptor source configured")
		return []PluginDescriptor{}
	}
	descs, err := src.Load()
	if err != nil {
		logger.Error("Failed to load plugin descriptors",
			"location", src.Location(),
			"error", err)
		return []PluginDescriptor{}
	}
	logger.Debug("Plugin descriptors loaded",
		"location", src.Location(),
		"count", len(descs))
	return descs
}
