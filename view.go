// view.go: text panes and style spans exposed by content plugins
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"sort"
	"sync"
)

// Style classes understood by the shell renderer.
const (
	StyleKeyword = "keyword"
	StyleComment = "comment"
	StyleString  = "string"
	StyleNumber  = "number"
	StyleKey     = "key"
	StyleLiteral = "literal"
	StyleError   = "error"
	StyleHeading = "heading"
)

// StyleSpan colours the byte range [Start, End) of a pane's text.
type StyleSpan struct {
	Start int
	End   int
	Class string
}

// PaneChangeKind tells listeners what changed.
type PaneChangeKind int

const (
	TextChanged PaneChangeKind = iota
	SpansChanged
)

func (k PaneChangeKind) String() string {
	switch k {
	case TextChanged:
		return "text"
	case SpansChanged:
		return "spans"
	default:
		return "unknown"
	}
}

// PaneChange is delivered to OnChange listeners after the pane lock is
// released.
type PaneChange struct {
	Pane     *Pane
	Kind     PaneChangeKind
	Revision uint64
	Text     string
}

// Pane is one editable or read-only text buffer of a plugin view.
type Pane struct {
	name     string
	readOnly bool

	mu        sync.RWMutex
	text      string
	spans     []StyleSpan
	revision  uint64
	listeners map[uint64]func(PaneChange)
	nextID    uint64
}

func NewPane(name string, readOnly bool) *Pane {
	return &Pane{
		name:      name,
		readOnly:  readOnly,
		listeners: make(map[uint64]func(PaneChange)),
	}
}

func (p *Pane) Name() string   { return p.name }
func (p *Pane) ReadOnly() bool { return p.readOnly }

func (p *Pane) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

// Revision increases on every text change.
func (p *Pane) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.revision
}

// SetText replaces the whole buffer. Existing spans are cleared since
// their offsets no longer apply. Setting identical text is a no-op.
func (p *Pane) SetText(text string) {
	p.mu.Lock()
	if p.text == text {
		p.mu.Unlock()
		return
	}
	p.text = text
	p.spans = nil
	p.revision++
	change := PaneChange{Pane: p, Kind: TextChanged, Revision: p.revision, Text: text}
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	notify(listeners, change)
}

// Replace substitutes text for the byte range [start, end), clamped to
// the buffer bounds.
func (p *Pane) Replace(start, end int, text string) {
	p.mu.Lock()
	start, end = clampRange(start, end, len(p.text))
	p.text = p.text[:start] + text + p.text[end:]
	p.spans = nil
	p.revision++
	change := PaneChange{Pane: p, Kind: TextChanged, Revision: p.revision, Text: p.text}
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	notify(listeners, change)
}

// Spans returns a sorted copy of the current style spans.
func (p *Pane) Spans() []StyleSpan {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]StyleSpan, len(p.spans))
	copy(out, p.spans)
	return out
}

// SetSpans installs spans, dropping empty ones and clamping the rest to
// the current text.
func (p *Pane) SetSpans(spans []StyleSpan) {
	p.mu.Lock()
	clean := make([]StyleSpan, 0, len(spans))
	for _, s := range spans {
		s.Start, s.End = clampRange(s.Start, s.End, len(p.text))
		if s.End > s.Start {
			clean = append(clean, s)
		}
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Start < clean[j].Start })
	p.spans = clean
	change := PaneChange{Pane: p, Kind: SpansChanged, Revision: p.revision, Text: p.text}
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	notify(listeners, change)
}

// OnChange registers fn and returns a function that removes it.
func (p *Pane) OnChange(fn func(PaneChange)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// caller holds p.mu
func (p *Pane) snapshotListeners() []func(PaneChange) {
	ids := make([]uint64, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(PaneChange), 0, len(ids))
	for _, id := range ids {
		out = append(out, p.listeners[id])
	}
	return out
}

func notify(listeners []func(PaneChange), change PaneChange) {
	for _, fn := range listeners {
		fn(change)
	}
}

func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > n {
		start = n
	}
	if end < start {
		end = start
	}
	return start, end
}

// View is what a plugin shows inside its tab.
type View interface {
	Panes() []*Pane
}

type paneView struct {
	panes []*Pane
}

// NewView builds a View from panes in display order.
func NewView(panes ...*Pane) View {
	return &paneView{panes: panes}
}

func (v *paneView) Panes() []*Pane {
	out := make([]*Pane, len(v.panes))
	copy(out, v.panes)
	return out
}

// FindPane returns the pane of v called name.
func FindPane(v View, name string) (*Pane, bool) {
	if v == nil {
		return nil, false
	}
	for _, p := range v.Panes() {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}
