// instance_manager_test.go: tests for per-context instance lifecycles
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func installedFixture(t *testing.T, ids ...string) *installFixture {
	t.Helper()
	fakes := make([]fakeType, len(ids))
	for i, id := range ids {
		fakes[i] = fakeType{id: id}
	}
	f := newInstallFixture(t, nil, fakes...)
	for _, id := range ids {
		require.NoError(t, f.installs.Install(f.pt(t, id)))
	}
	return f
}

func TestCreateInstance_RequiresInstalledType(t *testing.T) {
	f := newInstallFixture(t, nil, fakeType{id: "A"})

	_, err := f.instances.CreateInstance(f.pt(t, "A"))
	assert.True(t, HasErrorCode(err, ErrCodeNotInstalled))
	_, err = f.instances.CreateInstance(nil)
	assert.True(t, HasErrorCode(err, ErrCodeTypeResolution))

	constructed, _, _ := f.life["A"].counts()
	assert.Equal(t, 1, constructed, "only the catalog probe")
}

// TestCreateInstance_Isolated verifies that every instance is a distinct
// object with its own state and environment
func TestCreateInstance_Isolated(t *testing.T) {
	f := installedFixture(t, "A")
	a := f.pt(t, "A")

	one, err := f.instances.CreateInstance(a)
	require.NoError(t, err)
	two, err := f.instances.CreateInstance(a)
	require.NoError(t, err)

	assert.NotEqual(t, one.ID(), two.ID())
	assert.NotSame(t, one.Plugin(), two.Plugin())
	one.Plugin().SetContent("first")
	two.Plugin().SetContent("second")
	assert.Equal(t, "first", one.Plugin().Content())
	assert.Equal(t, "second", two.Plugin().Content())

	env := one.Plugin().(*fakePlugin).env
	assert.Equal(t, one.ID(), env.InstanceID)
	assert.Equal(t, "A", env.TypeID)
	assert.False(t, env.Probe())
	assert.Equal(t, DefaultDebounceWindow, env.DebounceWindow)

	assert.Equal(t, "A", one.TypeID())
	assert.Same(t, a, one.Type())
	assert.Equal(t, "A/"+one.ID(), one.String())
	assert.False(t, one.CreatedAt().IsZero())
	assert.NotNil(t, one.View())
	assert.Equal(t, 2, f.instances.LiveCount())
}

func TestCreateInstance_InitFailureDestroys(t *testing.T) {
	f := installedFixture(t, "A")
	f.life["A"].failInitialize(stderrors.New("no window"))

	_, err := f.instances.CreateInstance(f.pt(t, "A"))

	assert.True(t, HasErrorCode(err, ErrCodePluginInitFailed))
	assert.Zero(t, f.instances.LiveCount())
	_, initialized, destroyed := f.life["A"].counts()
	assert.Equal(t, 2, initialized) // install trial + failed instance
	assert.Equal(t, 3, destroyed)   // probe, trial, failed instance
}

func TestBind_OneToOne(t *testing.T) {
	f := installedFixture(t, "A")
	a := f.pt(t, "A")
	one, _ := f.instances.CreateInstance(a)
	two, _ := f.instances.CreateInstance(a)

	require.NoError(t, f.instances.Bind("tab-1", one))
	assert.True(t, HasErrorCode(f.instances.Bind("tab-1", two), ErrCodeAlreadyBound))
	assert.True(t, HasErrorCode(f.instances.Bind("tab-2", one), ErrCodeAlreadyBound))
	assert.True(t, HasErrorCode(f.instances.Bind("tab-2", nil), ErrCodeInstanceReleased))

	got, ok := f.instances.Lookup("tab-1")
	require.True(t, ok)
	assert.Same(t, one, got)
}

// TestBind_RejectsEmptyContext verifies that an unnamed context can never
// hold an instance, so uninstalling leaves no binding behind
func TestBind_RejectsEmptyContext(t *testing.T) {
	f := installedFixture(t, "A")
	inst, err := f.instances.CreateInstance(f.pt(t, "A"))
	require.NoError(t, err)

	err = f.instances.Bind("", inst)
	assert.True(t, HasErrorCode(err, ErrCodeInvalidContext))
	_, ok := f.instances.Lookup("")
	assert.False(t, ok)

	require.NoError(t, f.instances.Bind("tab-1", inst))
	require.NoError(t, f.installs.Uninstall(f.pt(t, "A")))

	assert.True(t, inst.Destroyed())
	assert.Empty(t, f.instances.Contexts())
	_, ok = f.instances.Lookup("tab-1")
	assert.False(t, ok)
	_, ok = f.instances.Lookup("")
	assert.False(t, ok)
}

func TestRelease_ExactlyOnce(t *testing.T) {
	f := installedFixture(t, "A")
	inst, _ := f.instances.CreateInstance(f.pt(t, "A"))
	require.NoError(t, f.instances.Bind("tab-1", inst))

	var kinds []InstanceEventKind
	f.instances.Subscribe(func(e InstanceEvent) { kinds = append(kinds, e.Kind) })

	f.instances.Release("tab-1")
	f.instances.Release("tab-1")
	f.instances.Release("never-bound")

	assert.True(t, inst.Destroyed())
	assert.Equal(t, 1, f.life["A"].destroyedTimes(inst.ID()))
	assert.Equal(t, []InstanceEventKind{InstanceReleased}, kinds)
	_, ok := f.instances.Lookup("tab-1")
	assert.False(t, ok)
	assert.True(t, HasErrorCode(f.instances.Bind("tab-2", inst), ErrCodeInstanceReleased))
}

// TestRelease_WaitsForRunningApply closes a tab while its highlight result
// is being applied on the event loop
func TestRelease_WaitsForRunningApply(t *testing.T) {
	// Setup: one installed type whose instances own a pipeline
	loop := NewEventLoop(nil)
	loop.Start()
	defer loop.Stop()

	gate := newApplyGate()
	types := NewTypeRegistry()
	require.NoError(t, RegisterPlugin(types, "Highlight", TypeInfo{}, newHighlightPlugin(gate)))
	catalog := BuildCatalog(descriptors("Highlight"), types)
	installs := NewInstallationRegistry(catalog, InstallationConfig{Environment: Environment{Dispatcher: loop}})
	instances := NewInstanceManager(installs, InstanceManagerConfig{Dispatcher: loop, DebounceWindow: time.Hour})
	pt, ok := catalog.Lookup("Highlight")
	require.True(t, ok)
	require.NoError(t, installs.Install(pt))

	inst, err := instances.CreateInstance(pt)
	require.NoError(t, err)
	require.NoError(t, instances.Bind("tab-1", inst))
	plugin := inst.Plugin().(*highlightPlugin)

	// Execute: release while the apply is held open
	plugin.SetContent("127.0.0.1 localhost")
	plugin.pipeline.Flush()
	<-gate.entered

	released := make(chan struct{})
	go func() {
		instances.Release("tab-1")
		close(released)
	}()

	// Verify
	select {
	case <-released:
		t.Fatal("Release returned while an apply was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("Release did not return")
	}

	var changes int
	plugin.pane.OnChange(func(PaneChange) { changes++ })
	require.NoError(t, loop.Do(context.Background(), func() {}))
	assert.Zero(t, gate.late.Load())
	assert.Zero(t, changes)
	assert.True(t, inst.Destroyed())
	assert.True(t, plugin.pipeline.Closed())
}

// TestInstanceManager_LifecycleProperty opens and closes tabs in random
// order. Each tab sees only its own instance and content, no instance is
// destroyed twice, and after ReleaseAll every instance was destroyed once.
func TestInstanceManager_LifecycleProperty(t *testing.T) {
	tabs := []ContextID{"tab-1", "tab-2", "tab-3"}
	rapid.Check(t, func(rt *rapid.T) {
		f := installedFixture(t, "A")
		a := f.pt(t, "A")
		life := f.life["A"]

		open := map[ContextID]*Instance{}
		var all []*Instance
		steps := rapid.SliceOfN(rapid.IntRange(0, 2*len(tabs)-1), 1, 30).Draw(rt, "steps")
		for _, step := range steps {
			ctx := tabs[step%len(tabs)]
			if step < len(tabs) {
				inst, err := f.instances.CreateInstance(a)
				if err != nil {
					rt.Fatalf("create: %v", err)
				}
				all = append(all, inst)
				inst.Plugin().SetContent(string(ctx) + "/" + inst.ID())
				err = f.instances.Bind(ctx, inst)
				if _, taken := open[ctx]; taken {
					if !HasErrorCode(err, ErrCodeAlreadyBound) {
						rt.Fatalf("bind to busy %s: %v", ctx, err)
					}
					if err := f.instances.Discard(inst); err != nil {
						rt.Fatalf("discard: %v", err)
					}
					continue
				}
				if err != nil {
					rt.Fatalf("bind %s: %v", ctx, err)
				}
				open[ctx] = inst
			} else {
				f.instances.Release(ctx)
				f.instances.Release(ctx)
				delete(open, ctx)
			}

			for _, inst := range all {
				if n := life.destroyedTimes(inst.ID()); n > 1 {
					rt.Fatalf("%s destroyed %d times", inst, n)
				}
			}
			for _, c := range tabs {
				got, ok := f.instances.Lookup(c)
				want, bound := open[c]
				if ok != bound || got != want {
					rt.Fatalf("%s: lookup bound=%t, want %t", c, ok, bound)
				}
				if bound && want.Plugin().Content() != string(c)+"/"+want.ID() {
					rt.Fatalf("%s shows content %q", c, want.Plugin().Content())
				}
			}
		}

		f.instances.ReleaseAll()
		for _, inst := range all {
			if n := life.destroyedTimes(inst.ID()); n != 1 {
				rt.Fatalf("%s destroyed %d times after ReleaseAll", inst, n)
			}
		}
		if f.instances.LiveCount() != 0 {
			rt.Fatalf("%d instances still live", f.instances.LiveCount())
		}
	})
}

func TestDiscard(t *testing.T) {
	f := installedFixture(t, "A")
	a := f.pt(t, "A")
	bound, _ := f.instances.CreateInstance(a)
	loose, _ := f.instances.CreateInstance(a)
	require.NoError(t, f.instances.Bind("tab-1", bound))

	assert.True(t, HasErrorCode(f.instances.Discard(bound), ErrCodeAlreadyBound))
	assert.False(t, bound.Destroyed())

	require.NoError(t, f.instances.Discard(loose))
	require.NoError(t, f.instances.Discard(loose))
	require.NoError(t, f.instances.Discard(nil))
	assert.Equal(t, 1, f.life["A"].destroyedTimes(loose.ID()))
	assert.Equal(t, 1, f.instances.LiveCount())
}

func TestReleaseAll(t *testing.T) {
	f := installedFixture(t, "A", "B")
	one, _ := f.instances.CreateInstance(f.pt(t, "A"))
	two, _ := f.instances.CreateInstance(f.pt(t, "B"))
	require.NoError(t, f.instances.Bind("tab-1", one))

	counts := map[InstanceEventKind]int{}
	f.instances.Subscribe(func(e InstanceEvent) { counts[e.Kind]++ })

	f.instances.ReleaseAll()
	f.instances.ReleaseAll()

	assert.True(t, one.Destroyed())
	assert.True(t, two.Destroyed())
	assert.Equal(t, map[InstanceEventKind]int{InstanceReleased: 1, InstanceDiscarded: 1}, counts)
	assert.Zero(t, f.instances.LiveCount())
	assert.Empty(t, f.instances.Contexts())
}

func TestInstanceEvents_Sequence(t *testing.T) {
	f := installedFixture(t, "A")
	var events []InstanceEvent
	f.instances.Subscribe(func(e InstanceEvent) { events = append(events, e) })

	inst, _ := f.instances.CreateInstance(f.pt(t, "A"))
	require.NoError(t, f.instances.Bind("tab-1", inst))
	f.instances.Release("tab-1")

	require.Len(t, events, 3)
	assert.Equal(t, InstanceCreated, events[0].Kind)
	assert.Empty(t, events[0].ContextID)
	assert.Equal(t, InstanceBound, events[1].Kind)
	assert.Equal(t, ContextID("tab-1"), events[1].ContextID)
	assert.Equal(t, InstanceReleased, events[2].Kind)
	for _, e := range events {
		assert.Equal(t, inst.ID(), e.InstanceID)
		assert.Equal(t, "A", e.TypeID)
	}
	assert.Equal(t, int64(1), f.metrics.Counter(MetricInstanceEvents,
		map[string]string{"kind": "bound", "plugin_type": "A"}))
}

// TestInstanceManager_ConcurrentTabs opens and closes tabs from many
// goroutines while the type is uninstalled midway
func TestInstanceManager_ConcurrentTabs(t *testing.T) {
	f := installedFixture(t, "A")
	a := f.pt(t, "A")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*Instance
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				inst, err := f.instances.CreateInstance(a)
				if err != nil {
					continue
				}
				mu.Lock()
				created = append(created, inst)
				mu.Unlock()
				ctx := ContextID(fmt.Sprintf("tab-%d-%d", g, i))
				if f.instances.Bind(ctx, inst) == nil && i%2 == 0 {
					f.instances.Release(ctx)
				}
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.installs.Uninstall(a)
	}()
	wg.Wait()
	f.instances.ReleaseAll()

	for _, inst := range created {
		assert.True(t, inst.Destroyed())
		assert.Equal(t, 1, f.life["A"].destroyedTimes(inst.ID()), inst.ID())
	}
	assert.Zero(t, f.instances.LiveCount())
}

func TestNewContextID_Unique(t *testing.T) {
	seen := map[ContextID]bool{}
	for i := 0; i < 100; i++ {
		id := NewContextID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
