// panic_recovery.go: panic recovery for goroutines and plugin hook calls
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"fmt"
	"runtime"
)

// RecoveryHandler receives the recovered value and the goroutine stack.
type RecoveryHandler func(recovered interface{}, stack []byte)

func captureStack() []byte {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// withStackRecover returns a deferred function that logs a panic together
// with the stack of the panicking goroutine.
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    ...
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(captureStack()))
		}
	}
}

func withCustomRecoveryHandler(handler RecoveryHandler) func() {
	return func() {
		if r := recover(); r != nil {
			handler(r, captureStack())
		}
	}
}

// SafeGo runs fn on a new goroutine and logs instead of crashing if it panics.
func SafeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}

// SafeGoWithHandler is SafeGo with a custom panic handler.
func SafeGoWithHandler(handler RecoveryHandler, fn func()) {
	go func() {
		defer withCustomRecoveryHandler(handler)()
		fn()
	}()
}

// PanicError carries a panic raised by plugin code across an error return.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("plugin panic: %v", p.Value)
}

// callGuarded runs a plugin hook and converts a panic into a *PanicError.
// Plugin code is foreign to the host, so every hook invocation goes
// through here.
func callGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: captureStack()}
		}
	}()
	return fn()
}

// MetricsRecoveryHandler counts recovered panics per component and logs
// them.
func MetricsRecoveryHandler(logger Logger, metrics MetricsCollector, component string) RecoveryHandler {
	return func(recovered interface{}, stack []byte) {
		if metrics != nil {
			metrics.IncrementCounter(MetricPanicsRecovered,
				map[string]string{"component": component}, 1)
		}
		logger.Error("Panic recovered",
			"panic", recovered,
			"component", component,
			"stack", string(stack))
	}
}
