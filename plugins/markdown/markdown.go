// markdown.go: markdown editor plugin with live HTML preview
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package markdown provides the MarkdownEditorPlugin content plugin.
package markdown

import (
	"bytes"
	"context"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	devtools "github.com/agilira/devtools"
)

const TypeID = "MarkdownEditorPlugin"

const (
	SourcePane  = "source"
	PreviewPane = "preview"
)

var Info = devtools.TypeInfo{
	DisplayName: "Markdown Editor",
	Description: "Edit markdown with a rendered preview",
	Extensions:  []string{".md", ".markdown"},
}

var headingRegexp = regexp.MustCompile(`(?m)^#{1,6}[ \t].*$`)

var renderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Render converts markdown to HTML.
func Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type rendering struct {
	source   string
	html     string
	headings []devtools.StyleSpan
}

// Plugin is the markdown editor.
type Plugin struct {
	devtools.BasePlugin

	source  *devtools.Pane
	preview *devtools.Pane
	view    devtools.View

	pipeline    *devtools.AnalysisPipeline[rendering]
	unsubscribe func()
}

func New(env devtools.Environment) (*Plugin, error) {
	p := &Plugin{
		source:  devtools.NewPane(SourcePane, false),
		preview: devtools.NewPane(PreviewPane, true),
	}
	p.view = devtools.NewView(p.source, p.preview)
	p.pipeline = devtools.NewAnalysisPipeline(env.NewPipelineConfig("markdown_preview"), render, p.apply)
	p.unsubscribe = p.source.OnChange(func(c devtools.PaneChange) {
		if c.Kind == devtools.TextChanged {
			p.pipeline.Submit(c.Text)
		}
	})
	return p, nil
}

func Register(r *devtools.TypeRegistry) error {
	return devtools.RegisterPlugin(r, TypeID, Info, New)
}

func render(ctx context.Context, source string) (rendering, error) {
	if err := ctx.Err(); err != nil {
		return rendering{}, err
	}
	html, err := Render(source)
	if err != nil {
		return rendering{}, err
	}
	r := rendering{source: source, html: html}
	for _, m := range headingRegexp.FindAllStringIndex(source, -1) {
		r.headings = append(r.headings, devtools.StyleSpan{Start: m[0], End: m[1], Class: devtools.StyleHeading})
	}
	return r, ctx.Err()
}

func (p *Plugin) apply(r devtools.AnalysisResult[rendering]) {
	if p.source.Text() != r.Value.source {
		return
	}
	p.preview.SetText(r.Value.html)
	p.source.SetSpans(r.Value.headings)
}

func (p *Plugin) View() devtools.View { return p.view }

func (p *Plugin) Source() *devtools.Pane  { return p.source }
func (p *Plugin) Preview() *devtools.Pane { return p.preview }

func (p *Plugin) Open(path string) error {
	content, err := devtools.ReadTextFile(path)
	if err != nil {
		return err
	}
	p.SetContent(content)
	return nil
}

func (p *Plugin) Save(path string) error {
	return devtools.WriteTextFile(path, p.source.Text())
}

func (p *Plugin) Content() string { return p.source.Text() }

func (p *Plugin) SetContent(content string) { p.source.SetText(content) }

func (p *Plugin) Destroy() error {
	p.unsubscribe()
	p.pipeline.Close()
	return nil
}

// Settle waits for the preview of the current source.
func (p *Plugin) Settle(ctx context.Context) error {
	return p.pipeline.Settle(ctx)
}

// Bold wraps the selection [start, end) in **. An empty selection is left
// alone and false is returned.
func (p *Plugin) Bold(start, end int) bool {
	return p.wrap(start, end, "**", "**")
}

// Italic wraps the selection in _.
func (p *Plugin) Italic(start, end int) bool {
	return p.wrap(start, end, "_", "_")
}

// Heading prefixes the selection with "# ".
func (p *Plugin) Heading(start, end int) bool {
	return p.wrap(start, end, "# ", "")
}

func (p *Plugin) wrap(start, end int, before, after string) bool {
	text := p.source.Text()
	start = min(max(start, 0), len(text))
	end = min(max(end, 0), len(text))
	if start > end {
		start, end = end, start
	}
	if start == end {
		return false
	}
	p.source.Replace(start, end, before+text[start:end]+after)
	return true
}
