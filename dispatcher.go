// dispatcher.go: the interactive thread that owns view updates
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"context"
	"sync"
)

// Dispatcher runs tasks on the interactive thread. Post reports false when
// the task was rejected because the dispatcher has stopped.
type Dispatcher interface {
	Post(task func()) bool
}

// InlineDispatcher runs each task synchronously on the posting goroutine.
// Headless tools and tests use it when there is no interactive thread.
type InlineDispatcher struct{}

func (InlineDispatcher) Post(task func()) bool {
	task()
	return true
}

// EventLoop is a single goroutine draining an unbounded FIFO of tasks.
// Posting never blocks. A panicking task is logged and counted, and the
// loop carries on.
type EventLoop struct {
	logger  Logger
	metrics MetricsCollector

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	stopped bool
	done    chan struct{}
}

func NewEventLoop(logger Logger) *EventLoop {
	if logger == nil {
		logger = DefaultLogger()
	}
	el := &EventLoop{
		logger:  logger,
		metrics: NoOpMetricsCollector{},
		done:    make(chan struct{}),
	}
	el.cond = sync.NewCond(&el.mu)
	return el
}

// WithMetrics counts recovered task panics in metrics. Call it before Start.
func (el *EventLoop) WithMetrics(metrics MetricsCollector) *EventLoop {
	if metrics != nil {
		el.metrics = metrics
	}
	return el
}

// Start runs the loop on a new goroutine. Calling it twice is a no-op.
func (el *EventLoop) Start() {
	el.mu.Lock()
	if el.started || el.stopped {
		el.mu.Unlock()
		return
	}
	el.started = true
	el.mu.Unlock()
	SafeGo(el.logger, el.run)
}

func (el *EventLoop) run() {
	defer close(el.done)
	for {
		el.mu.Lock()
		for len(el.queue) == 0 && !el.stopped {
			el.cond.Wait()
		}
		if el.stopped {
			el.queue = nil
			el.mu.Unlock()
			return
		}
		task := el.queue[0]
		el.queue[0] = nil
		el.queue = el.queue[1:]
		el.mu.Unlock()

		el.execute(task)
	}
}

func (el *EventLoop) execute(task func()) {
	defer withCustomRecoveryHandler(MetricsRecoveryHandler(el.logger, el.metrics, "event_loop"))()
	task()
}

func (el *EventLoop) Post(task func()) bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.stopped {
		return false
	}
	el.queue = append(el.queue, task)
	el.cond.Signal()
	return true
}

// Do posts fn and waits for it to run. It must not be called from the
// loop itself.
func (el *EventLoop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !el.Post(func() {
		defer close(finished)
		fn()
	}) {
		return context.Canceled
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop discards queued tasks and terminates the loop. Idempotent.
func (el *EventLoop) Stop() {
	el.mu.Lock()
	if el.stopped {
		el.mu.Unlock()
		return
	}
	el.stopped = true
	started := el.started
	el.cond.Broadcast()
	el.mu.Unlock()

	if !started {
		close(el.done)
	}
}

// Done is closed once the loop goroutine has exited.
func (el *EventLoop) Done() <-chan struct{} {
	return el.done
}

// Pending returns the number of queued tasks.
func (el *EventLoop) Pending() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.queue)
}
