// builtin.go: registration table and descriptor resource of the bundled plugins
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package builtin links the bundled content plugins into a binary.
//
//	types := devtools.NewTypeRegistry()
//	if err := builtin.Register(types); err != nil { ... }
//	host, err := devtools.NewHost(cfg, types, builtin.Descriptors())
package builtin

import (
	"embed"

	devtools "github.com/agilira/devtools"
	"github.com/agilira/devtools/plugins/hosts"
	"github.com/agilira/devtools/plugins/jsonformat"
	"github.com/agilira/devtools/plugins/markdown"
)

// ResourceName is the name of the embedded descriptor list.
const ResourceName = "plugins.json"

//go:embed plugins.json
var resources embed.FS

var registrations = []func(*devtools.TypeRegistry) error{
	jsonformat.Register,
	hosts.Register,
	markdown.Register,
}

// Register adds every bundled plugin type to r.
func Register(r *devtools.TypeRegistry) error {
	for _, register := range registrations {
		if err := register(r); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors returns the embedded descriptor list.
func Descriptors() devtools.DescriptorSource {
	return devtools.FSDescriptorSource{FS: resources, Name: ResourceName}
}
