// jsonformat.go: JSON formatter, validator and struct generator plugin
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package jsonformat provides the JsonFormatPlugin content plugin: an
// editable input pane that is validated and highlighted while typing, and
// a read-only output pane that receives pretty printed JSON or generated
// Go types.
package jsonformat

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	devtools "github.com/agilira/devtools"
)

// TypeID is the descriptor identifier of the plugin.
const TypeID = "JsonFormatPlugin"

// Pane names.
const (
	InputPane  = "input"
	OutputPane = "output"
)

// errorContext is the number of bytes marked on each side of a syntax
// error.
const errorContext = 5

// Info describes the plugin type.
var Info = devtools.TypeInfo{
	DisplayName: "JSON Formatter",
	Description: "Format, validate and generate Go types from JSON",
	Extensions:  []string{".json"},
}

// Options controls formatting.
type Options struct {
	// EscapeKeywords unescapes \" and strips literal \n sequences before
	// formatting, for JSON pasted from string literals.
	EscapeKeywords bool
}

// DefaultOptions returns the initial options of a new plugin.
func DefaultOptions() Options {
	return Options{EscapeKeywords: true}
}

// SyntaxError locates the first error of invalid JSON. Line and Column
// are 1-based; Offset is a byte offset into the checked text.
type SyntaxError struct {
	Line   int
	Column int
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JSON at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

type analysis struct {
	content string
	spans   []devtools.StyleSpan
	err     *SyntaxError
}

// Plugin is the JSON formatter.
type Plugin struct {
	devtools.BasePlugin

	logger devtools.Logger
	input  *devtools.Pane
	output *devtools.Pane
	view   devtools.View

	pipeline    *devtools.AnalysisPipeline[analysis]
	unsubscribe func()

	mu      sync.Mutex
	opts    Options
	lastErr *SyntaxError
}

// New builds a plugin. The input pane is analysed on every change after
// the environment's debounce window.
func New(env devtools.Environment) (*Plugin, error) {
	logger := env.Logger
	if logger == nil {
		logger = devtools.DefaultLogger()
	}
	p := &Plugin{
		logger: logger,
		input:  devtools.NewPane(InputPane, false),
		output: devtools.NewPane(OutputPane, true),
		opts:   DefaultOptions(),
	}
	p.view = devtools.NewView(p.input, p.output)
	p.pipeline = devtools.NewAnalysisPipeline(env.NewPipelineConfig("json_validate"), p.analyze, p.apply)
	p.unsubscribe = p.input.OnChange(func(c devtools.PaneChange) {
		if c.Kind == devtools.TextChanged {
			p.pipeline.Submit(c.Text)
		}
	})
	return p, nil
}

// Register adds the plugin type to r.
func Register(r *devtools.TypeRegistry) error {
	return devtools.RegisterPlugin(r, TypeID, Info, New)
}

func (p *Plugin) View() devtools.View { return p.view }

func (p *Plugin) Input() *devtools.Pane  { return p.input }
func (p *Plugin) Output() *devtools.Pane { return p.output }

func (p *Plugin) Open(path string) error {
	content, err := devtools.ReadTextFile(path)
	if err != nil {
		return err
	}
	p.SetContent(content)
	return nil
}

// Save writes the output pane, or the input when nothing was formatted.
func (p *Plugin) Save(path string) error {
	content := p.output.Text()
	if content == "" {
		content = p.input.Text()
	}
	return devtools.WriteTextFile(path, content)
}

func (p *Plugin) Content() string { return p.input.Text() }

func (p *Plugin) SetContent(content string) { p.input.SetText(content) }

// Destroy stops the live analysis.
func (p *Plugin) Destroy() error {
	p.unsubscribe()
	p.pipeline.Close()
	return nil
}

func (p *Plugin) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

func (p *Plugin) SetOptions(opts Options) {
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
}

// LastError returns the syntax error found by the most recent live
// analysis, or nil when the input was valid.
func (p *Plugin) LastError() *SyntaxError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Settle waits for the live analysis of the current input.
func (p *Plugin) Settle(ctx context.Context) error {
	return p.pipeline.Settle(ctx)
}

// Format pretty prints the input into the output pane. On invalid JSON
// the output receives the error message, the offending region of the
// input is marked and the error is returned.
func (p *Plugin) Format() error {
	raw := p.input.Text()
	src := raw
	if p.Options().EscapeKeywords {
		src = Unescape(src)
	}

	if !gjson.Valid(src) {
		serr := locateSyntaxError(src)
		p.output.SetText(serr.Error())
		if span, ok := errorSpan(raw, src, serr); ok {
			p.input.SetSpans(append(Highlight(raw), span))
		}
		p.logger.Debug("JSON format rejected input", "line", serr.Line, "column", serr.Column)
		return serr
	}

	formatted := string(pretty.Pretty([]byte(src)))
	p.output.SetText(formatted)
	p.output.SetSpans(Highlight(formatted))
	return nil
}

// GenerateStruct writes Go type declarations for the input object into the
// output pane.
func (p *Plugin) GenerateStruct() error {
	code, err := GenerateStruct(p.input.Text(), "Root")
	if err != nil {
		return err
	}
	p.output.SetText(code)
	return nil
}

// Set replaces the value at path (gjson path syntax) in the input. value
// is encoded as JSON.
func (p *Plugin) Set(path string, value any) error {
	updated, err := sjson.Set(p.input.Text(), path, value)
	if err != nil {
		return err
	}
	p.input.SetText(updated)
	return nil
}

// Get returns the raw JSON of the value at path, if present.
func (p *Plugin) Get(path string) (string, bool) {
	r := gjson.Get(p.input.Text(), path)
	return r.Raw, r.Exists()
}

func (p *Plugin) analyze(ctx context.Context, content string) (analysis, error) {
	if err := ctx.Err(); err != nil {
		return analysis{}, err
	}
	a := analysis{content: content, spans: Highlight(content)}
	if strings.TrimSpace(content) != "" && !gjson.Valid(content) {
		a.err = locateSyntaxError(content)
		if span, ok := errorSpan(content, content, a.err); ok {
			a.spans = append(a.spans, span)
		}
	}
	return a, ctx.Err()
}

// apply runs on the dispatcher. Results for text that has since changed
// are ignored.
func (p *Plugin) apply(r devtools.AnalysisResult[analysis]) {
	if p.input.Text() != r.Value.content {
		return
	}
	p.input.SetSpans(r.Value.spans)
	p.mu.Lock()
	p.lastErr = r.Value.err
	p.mu.Unlock()
}

// Unescape turns JSON copied out of a string literal back into JSON.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\n`, "")
}

// locateSyntaxError reports the first error in src. src must be invalid.
func locateSyntaxError(src string) *SyntaxError {
	var v any
	err := json.Unmarshal([]byte(src), &v)

	offset := len(src)
	msg := "invalid JSON"
	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		offset = int(syntaxErr.Offset)
		msg = syntaxErr.Error()
	} else if err != nil {
		msg = err.Error()
	}

	// Offset counts the bytes read, including the offending one.
	pos := offset - 1
	if pos < 0 {
		pos = 0
	}
	if pos > len(src) {
		pos = len(src)
	}
	line := 1 + strings.Count(src[:pos], "\n")
	col := pos - strings.LastIndex(src[:pos], "\n")
	return &SyntaxError{Line: line, Column: col, Offset: pos, Msg: msg}
}

// errorSpan marks a few bytes around the error. checked is the text the
// error was found in, which may be an unescaped copy of text; the region
// is then searched for in text.
func errorSpan(text, checked string, serr *SyntaxError) (devtools.StyleSpan, bool) {
	lineStart := strings.LastIndex(checked[:serr.Offset], "\n") + 1
	lineEnd := strings.IndexByte(checked[serr.Offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(checked)
	} else {
		lineEnd += serr.Offset
	}
	from := max(serr.Offset-errorContext, lineStart)
	to := min(serr.Offset+errorContext, lineEnd)
	if to <= from {
		if len(text) == 0 {
			return devtools.StyleSpan{}, false
		}
		from, to = max(len(text)-1, 0), len(text)
		return devtools.StyleSpan{Start: from, End: to, Class: devtools.StyleError}, true
	}
	if text == checked {
		return devtools.StyleSpan{Start: from, End: to, Class: devtools.StyleError}, true
	}
	at := strings.Index(text, checked[from:to])
	if at < 0 {
		return devtools.StyleSpan{}, false
	}
	return devtools.StyleSpan{Start: at, End: at + (to - from), Class: devtools.StyleError}, true
}
