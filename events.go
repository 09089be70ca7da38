// events.go: change notifications for installation and instance state
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"sort"
	"sync"
	"time"
)

// InstallationEventKind is the transition an InstallationEvent reports.
type InstallationEventKind int

const (
	Installed InstallationEventKind = iota
	Uninstalled
)

func (k InstallationEventKind) String() string {
	if k == Installed {
		return "installed"
	}
	return "uninstalled"
}

// InstallationEvent is emitted after a type's installed flag flips.
type InstallationEvent struct {
	Kind   InstallationEventKind
	TypeID string
	At     time.Time
}

// InstanceEventKind is the lifecycle step an InstanceEvent reports.
type InstanceEventKind int

const (
	InstanceCreated InstanceEventKind = iota
	InstanceBound
	InstanceReleased
	InstanceRevoked
	InstanceDiscarded
)

func (k InstanceEventKind) String() string {
	switch k {
	case InstanceCreated:
		return "created"
	case InstanceBound:
		return "bound"
	case InstanceReleased:
		return "released"
	case InstanceRevoked:
		return "revoked"
	case InstanceDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// InstanceEvent reports a lifecycle step of one plugin instance.
// ContextID is empty for instances not bound to a context.
type InstanceEvent struct {
	Kind       InstanceEventKind
	ContextID  ContextID
	InstanceID string
	TypeID     string
	At         time.Time
}

// eventBus fans events out to subscribers synchronously, in subscription
// order, outside of any caller lock. A panicking subscriber is logged and
// does not prevent delivery to the others.
type eventBus[E any] struct {
	logger Logger

	mu     sync.RWMutex
	subs   map[uint64]func(E)
	nextID uint64
}

func newEventBus[E any](logger Logger) *eventBus[E] {
	return &eventBus[E]{
		logger: logger,
		subs:   make(map[uint64]func(E)),
	}
}

func (b *eventBus[E]) subscribe(fn func(E)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *eventBus[E]) publish(event E) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(E), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.deliver(fn, event)
	}
}

func (b *eventBus[E]) deliver(fn func(E), event E) {
	defer withStackRecover(b.logger)()
	fn(event)
}
