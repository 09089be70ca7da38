// fakes_test.go: in-package plugin doubles shared by the host tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
)

// lifecycle counts hook calls across every instance of a fake type.
type lifecycle struct {
	mu          sync.Mutex
	constructed int
	initialized int
	destroyed   map[string]int // by instance id, "" for probes
	envs        []Environment
	failInit    error // returned by every later Initialize
}

func newLifecycle() *lifecycle {
	return &lifecycle{destroyed: make(map[string]int)}
}

func (l *lifecycle) counts() (constructed, initialized, destroyed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.destroyed {
		destroyed += n
	}
	return l.constructed, l.initialized, destroyed
}

// destroyedTimes returns how often the instance was destroyed.
func (l *lifecycle) destroyedTimes(instanceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyed[instanceID]
}

func (l *lifecycle) failInitialize(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failInit = err
}

// fakePlugin is a single-pane text editor.
type fakePlugin struct {
	env     Environment
	pane    *Pane
	life    *lifecycle
	initErr error
}

func (f *fakePlugin) View() View                  { return NewView(f.pane) }
func (f *fakePlugin) DefaultPath() (string, bool) { return "", false }
func (f *fakePlugin) Content() string             { return f.pane.Text() }
func (f *fakePlugin) SetContent(content string)   { f.pane.SetText(content) }

func (f *fakePlugin) Open(path string) error {
	text, err := ReadTextFile(path)
	if err != nil {
		return err
	}
	f.pane.SetText(text)
	return nil
}

func (f *fakePlugin) Save(path string) error {
	return WriteTextFile(path, f.pane.Text())
}

func (f *fakePlugin) Initialize() error {
	f.life.mu.Lock()
	f.life.initialized++
	failInit := f.life.failInit
	f.life.mu.Unlock()
	if failInit != nil {
		return failInit
	}
	return f.initErr
}

func (f *fakePlugin) Destroy() error {
	f.life.mu.Lock()
	f.life.destroyed[f.env.InstanceID]++
	f.life.mu.Unlock()
	return nil
}

// fakeType configures a fake registration.
type fakeType struct {
	id         string
	extensions []string
	initErr    error
}

func (ft fakeType) constructor(life *lifecycle) func(Environment) (*fakePlugin, error) {
	return func(env Environment) (*fakePlugin, error) {
		life.mu.Lock()
		life.constructed++
		life.envs = append(life.envs, env)
		life.mu.Unlock()
		return &fakePlugin{env: env, pane: NewPane("text", false), life: life, initErr: ft.initErr}, nil
	}
}

func registerFake(r *TypeRegistry, ft fakeType) *lifecycle {
	life := newLifecycle()
	if err := RegisterPlugin(r, ft.id, TypeInfo{Extensions: ft.extensions}, ft.constructor(life)); err != nil {
		panic(err)
	}
	return life
}

// nilViewPlugin satisfies ContentPlugin but shows nothing.
type nilViewPlugin struct {
	BasePlugin
}

func (nilViewPlugin) View() View        { return nil }
func (nilViewPlugin) Open(string) error { return nil }
func (nilViewPlugin) Save(string) error { return nil }
func (nilViewPlugin) Content() string   { return "" }
func (nilViewPlugin) SetContent(string) {}

// notAPlugin lacks every ContentPlugin method.
type notAPlugin struct{}

// registerBrokenTypes adds one type per construction failure mode.
func registerBrokenTypes(r *TypeRegistry) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register("NilView", TypeInfo{}, func(Environment) (any, error) { return nilViewPlugin{}, nil }))
	must(r.Register("NotAPlugin", TypeInfo{}, func(Environment) (any, error) { return notAPlugin{}, nil }))
	must(r.Register("Panicky", TypeInfo{}, func(Environment) (any, error) { panic("ctor exploded") }))
	must(r.Register("Failing", TypeInfo{}, func(Environment) (any, error) { return nil, stderrors.New("no resources") }))
	must(r.Register("NilValue", TypeInfo{}, func(Environment) (any, error) { return nil, nil }))
}

func descriptors(ids ...string) []PluginDescriptor {
	out := make([]PluginDescriptor, len(ids))
	for i, id := range ids {
		out[i] = PluginDescriptor{Identifier: id}
	}
	return out
}

// applyGate holds a highlightPlugin's apply open on the dispatcher until
// the test releases it.
type applyGate struct {
	entered chan struct{}
	release chan struct{}
	late    atomic.Int32 // applies that ran after Destroy returned
}

func newApplyGate() *applyGate {
	return &applyGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

// highlightPlugin paints its text with one span computed by a pipeline.
type highlightPlugin struct {
	BasePlugin
	env       Environment
	pane      *Pane
	gate      *applyGate
	pipeline  *AnalysisPipeline[int]
	destroyed atomic.Bool
}

func newHighlightPlugin(gate *applyGate) func(Environment) (*highlightPlugin, error) {
	return func(env Environment) (*highlightPlugin, error) {
		return &highlightPlugin{env: env, pane: NewPane("text", false), gate: gate}, nil
	}
}

func (h *highlightPlugin) View() View             { return NewView(h.pane) }
func (h *highlightPlugin) Content() string        { return h.pane.Text() }
func (h *highlightPlugin) Open(path string) error { return nil }
func (h *highlightPlugin) Save(path string) error { return nil }

func (h *highlightPlugin) SetContent(content string) {
	h.pane.SetText(content)
	h.pipeline.Submit(content)
}

func (h *highlightPlugin) Initialize() error {
	h.pipeline = NewAnalysisPipeline(h.env.NewPipelineConfig("highlight"),
		func(_ context.Context, content string) (int, error) { return len(content), nil },
		h.apply)
	return nil
}

func (h *highlightPlugin) apply(res AnalysisResult[int]) {
	h.gate.entered <- struct{}{}
	<-h.gate.release
	if h.destroyed.Load() {
		h.gate.late.Add(1)
	}
	h.pane.SetSpans([]StyleSpan{{Start: 0, End: res.Value, Class: StyleKeyword}})
}

func (h *highlightPlugin) Destroy() error {
	if h.pipeline != nil {
		h.pipeline.Close()
	}
	h.destroyed.Store(true)
	return nil
}
