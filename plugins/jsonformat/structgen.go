// structgen.go: Go struct skeletons from sample JSON objects
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package jsonformat

import (
	"errors"
	"fmt"
	"go/format"
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// ErrNotObject is returned by GenerateStruct when the input is valid JSON
// but not an object.
var ErrNotObject = errors.New("input JSON must be an object")

// initialisms are rendered in upper case when they form a whole word.
var initialisms = map[string]bool{
	"api": true, "id": true, "ip": true, "json": true, "http": true,
	"https": true, "uri": true, "url": true, "uuid": true, "html": true,
}

type pendingType struct {
	name string
	obj  gjson.Result
}

type structGen struct {
	queue []pendingType
	used  map[string]int
	out   strings.Builder
}

// GenerateStruct renders Go type declarations for the JSON object src.
// Nested objects become their own types named after the key; arrays take
// the type of their first element; integral numbers map to int64.
func GenerateStruct(src, rootName string) (string, error) {
	if !gjson.Valid(src) {
		return "", locateSyntaxError(src)
	}
	root := gjson.Parse(src)
	if !root.IsObject() {
		return "", ErrNotObject
	}
	if rootName == "" {
		rootName = "Root"
	}

	g := &structGen{used: make(map[string]int)}
	g.enqueue(exportName(rootName), root)
	for len(g.queue) > 0 {
		next := g.queue[0]
		g.queue = g.queue[1:]
		g.render(next)
	}

	code := g.out.String()
	formatted, err := format.Source([]byte(code))
	if err != nil {
		return code, nil
	}
	return string(formatted), nil
}

func (g *structGen) enqueue(name string, obj gjson.Result) string {
	unique := name
	if n := g.used[name]; n > 0 {
		unique = name + strconv.Itoa(n+1)
	}
	g.used[name]++
	g.queue = append(g.queue, pendingType{name: unique, obj: obj})
	return unique
}

func (g *structGen) render(t pendingType) {
	if g.out.Len() > 0 {
		g.out.WriteString("\n")
	}
	fmt.Fprintf(&g.out, "type %s struct {\n", t.name)
	fields := make(map[string]int)
	t.obj.ForEach(func(key, value gjson.Result) bool {
		field := exportName(key.String())
		if n := fields[field]; n > 0 {
			fields[field]++
			field += strconv.Itoa(n + 1)
		} else {
			fields[field] = 1
		}
		fmt.Fprintf(&g.out, "\t%s %s `json:%s`\n", field, g.typeOf(key.String(), value), strconv.Quote(key.String()))
		return true
	})
	g.out.WriteString("}\n")
}

func (g *structGen) typeOf(key string, v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return "string"
	case gjson.True, gjson.False:
		return "bool"
	case gjson.Number:
		if strings.ContainsAny(v.Raw, ".eE") {
			return "float64"
		}
		return "int64"
	case gjson.Null:
		return "any"
	}
	if v.IsObject() {
		return g.enqueue(exportName(key), v)
	}
	if v.IsArray() {
		elems := v.Array()
		if len(elems) == 0 {
			return "[]any"
		}
		return "[]" + g.typeOf(key, elems[0])
	}
	return "any"
}

// exportName turns a JSON key into an exported Go identifier.
func exportName(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		if initialisms[strings.ToLower(w)] {
			b.WriteString(strings.ToUpper(w))
			continue
		}
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	name := b.String()
	if name == "" {
		return "Field"
	}
	if first := []rune(name)[0]; !unicode.IsLetter(first) {
		name = "F" + name
	}
	return name
}
