// descriptor_watcher.go: re-discovery when the descriptor file changes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// DescriptorWatcherOptions configures a DescriptorWatcher.
type DescriptorWatcherOptions struct {
	PollInterval time.Duration
	Logger       Logger

	// AuditFile enables the argus audit trail when set.
	AuditFile string
}

// DescriptorWatcher polls a descriptor file with argus and invokes a
// callback after each create or modify. Deletions are logged and ignored
// so that a half-written replacement does not empty the catalog.
type DescriptorWatcher struct {
	path     string
	logger   Logger
	onChange func(path string)
	watcher  *argus.Watcher

	mu       sync.Mutex
	running  atomic.Bool
	stopOnce sync.Once
	changes  atomic.Int64
}

// NewDescriptorWatcher prepares a watcher for path. Call Start to begin.
func NewDescriptorWatcher(path string, opts DescriptorWatcherOptions, onChange func(path string)) *DescriptorWatcher {
	if opts.Logger == nil {
		opts.Logger = DefaultLogger()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	logger := opts.Logger.With("component", "descriptor_watcher")

	audit := argus.AuditConfig{Enabled: false}
	if opts.AuditFile != "" {
		audit = argus.AuditConfig{
			Enabled:       true,
			OutputFile:    opts.AuditFile,
			MinLevel:      argus.AuditInfo,
			BufferSize:    100,
			FlushInterval: 5 * time.Second,
		}
	}

	dw := &DescriptorWatcher{
		path:     path,
		logger:   logger,
		onChange: onChange,
	}
	dw.watcher = argus.New(argus.Config{
		PollInterval:         opts.PollInterval,
		CacheTTL:             opts.PollInterval / 2,
		MaxWatchedFiles:      1,
		Audit:                audit,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			logger.Error("Descriptor file watching error", "error", err, "file", filepath)
		},
	})
	return dw
}

func (dw *DescriptorWatcher) Start() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.running.Load() {
		return nil
	}
	if err := dw.watcher.Watch(dw.path, dw.handleChange); err != nil {
		return NewConfigWatcherError(fmt.Sprintf("failed to watch %s", dw.path), err)
	}
	if err := dw.watcher.Start(); err != nil {
		return NewConfigWatcherError("failed to start descriptor watcher", err)
	}
	dw.running.Store(true)
	dw.logger.Info("Descriptor watcher started", "path", dw.path)
	return nil
}

func (dw *DescriptorWatcher) handleChange(event argus.ChangeEvent) {
	defer withStackRecover(dw.logger)()

	dw.logger.Info("Descriptor file change detected",
		"path", event.Path,
		"mod_time", event.ModTime,
		"size", event.Size,
		"is_create", event.IsCreate,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if event.IsDelete {
		dw.logger.Warn("Descriptor file was deleted, keeping current catalog", "path", event.Path)
		return
	}
	dw.changes.Add(1)
	if dw.onChange != nil {
		dw.onChange(event.Path)
	}
}

// Changes returns the number of change notifications forwarded.
func (dw *DescriptorWatcher) Changes() int64 {
	return dw.changes.Load()
}

// Stop halts polling. Safe to call more than once.
func (dw *DescriptorWatcher) Stop() error {
	var stopErr error
	dw.stopOnce.Do(func() {
		dw.mu.Lock()
		defer dw.mu.Unlock()
		if !dw.running.CompareAndSwap(true, false) {
			return
		}
		if err := dw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop descriptor watcher", err)
			return
		}
		dw.logger.Info("Descriptor watcher stopped", "path", dw.path)
	})
	return stopErr
}
