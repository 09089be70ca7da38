// hosts.go: hosts file editor plugin
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package hosts provides the HostsManagerPlugin content plugin, an editor
// for the operating system hosts file with address and comment
// highlighting.
package hosts

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	devtools "github.com/agilira/devtools"
)

const TypeID = "HostsManagerPlugin"

// EditorPane is the name of the single pane.
const EditorPane = "hosts"

var Info = devtools.TypeInfo{
	DisplayName: "Hosts Manager",
	Description: "Edit the system hosts file",
	Extensions:  []string{"hosts"},
}

var (
	addressPattern = `([1-9]|[1-9]\d|1\d{2}|2[0-4]\d|25[0-5])(\.(\d|[1-9]\d|1\d{2}|2[0-4]\d|25[0-5])){3}\b`
	commentPattern = `#[^\n]*`

	highlightRegexp = regexp.MustCompile(`(?P<keyword>` + addressPattern + `)|(?P<comment>` + commentPattern + `)`)
)

// DefaultHostsPath returns the hosts file of the running system.
func DefaultHostsPath() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("SystemRoot")
		if root == "" {
			root = `C:\Windows`
		}
		return filepath.Join(root, "System32", "drivers", "etc", "hosts")
	}
	return "/etc/hosts"
}

// Highlight marks IPv4 addresses as keywords and # comments.
func Highlight(text string) []devtools.StyleSpan {
	matches := highlightRegexp.FindAllStringSubmatchIndex(text, -1)
	keyword := highlightRegexp.SubexpIndex("keyword")
	spans := make([]devtools.StyleSpan, 0, len(matches))
	for _, m := range matches {
		class := devtools.StyleComment
		if m[2*keyword] >= 0 {
			class = devtools.StyleKeyword
		}
		spans = append(spans, devtools.StyleSpan{Start: m[0], End: m[1], Class: class})
	}
	return spans
}

type highlighting struct {
	content string
	spans   []devtools.StyleSpan
}

// Plugin is the hosts file editor.
type Plugin struct {
	devtools.BasePlugin

	logger devtools.Logger
	path   string
	editor *devtools.Pane
	view   devtools.View

	pipeline    *devtools.AnalysisPipeline[highlighting]
	unsubscribe func()
}

// New builds an editor for the system hosts file.
func New(env devtools.Environment) (*Plugin, error) {
	return NewWithPath(env, DefaultHostsPath())
}

// NewWithPath builds an editor whose default file is path.
func NewWithPath(env devtools.Environment, path string) (*Plugin, error) {
	logger := env.Logger
	if logger == nil {
		logger = devtools.DefaultLogger()
	}
	p := &Plugin{
		logger: logger,
		path:   path,
		editor: devtools.NewPane(EditorPane, false),
	}
	p.view = devtools.NewView(p.editor)
	p.pipeline = devtools.NewAnalysisPipeline(env.NewPipelineConfig("hosts_highlight"),
		func(ctx context.Context, content string) (highlighting, error) {
			if err := ctx.Err(); err != nil {
				return highlighting{}, err
			}
			return highlighting{content: content, spans: Highlight(content)}, nil
		},
		p.apply)
	p.unsubscribe = p.editor.OnChange(func(c devtools.PaneChange) {
		if c.Kind == devtools.TextChanged {
			p.pipeline.Submit(c.Text)
		}
	})
	return p, nil
}

func Register(r *devtools.TypeRegistry) error {
	return devtools.RegisterPlugin(r, TypeID, Info, New)
}

func (p *Plugin) apply(r devtools.AnalysisResult[highlighting]) {
	if p.editor.Text() != r.Value.content {
		return
	}
	p.editor.SetSpans(r.Value.spans)
}

func (p *Plugin) View() devtools.View { return p.view }

func (p *Plugin) Editor() *devtools.Pane { return p.editor }

func (p *Plugin) DefaultPath() (string, bool) {
	return p.path, p.path != ""
}

// Initialize loads the default hosts file. An unreadable file leaves the
// editor empty.
func (p *Plugin) Initialize() error {
	if p.path == "" {
		return nil
	}
	content, err := devtools.ReadTextFile(p.path)
	if err != nil {
		p.logger.Warn("Hosts file not readable, starting empty", "path", p.path, "error", err)
		return nil
	}
	p.SetContent(content)
	return nil
}

func (p *Plugin) Destroy() error {
	p.unsubscribe()
	p.pipeline.Close()
	return nil
}

func (p *Plugin) Open(path string) error {
	content, err := devtools.ReadTextFile(path)
	if err != nil {
		return err
	}
	p.SetContent(content)
	return nil
}

// Save writes the editor to path, or to the default hosts file when path
// is empty. Writing the system file needs the privileges of the process.
func (p *Plugin) Save(path string) error {
	if path == "" {
		path = p.path
	}
	return devtools.WriteTextFile(path, p.editor.Text())
}

func (p *Plugin) Content() string { return p.editor.Text() }

func (p *Plugin) SetContent(content string) { p.editor.SetText(content) }

// Settle waits for the highlighting of the current text.
func (p *Plugin) Settle(ctx context.Context) error {
	return p.pipeline.Settle(ctx)
}

// Entries parses the current content.
func (p *Plugin) Entries() ([]Entry, []int) {
	return Parse(p.editor.Text())
}
