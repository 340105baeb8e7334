// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow is how long the watcher waits for further file
// events before reloading. Editors save through rename-and-replace,
// which arrives as a burst of events.
const DefaultDebounceWindow = 200 * time.Millisecond

// Watcher reloads the configuration when its file changes on disk.
//
// # Description
//
// Watches the directory containing the config file (a direct file watch
// breaks when editors replace the file via rename), debounces the event
// burst, then re-runs Load. A reload that fails to parse or validate is
// logged and skipped; the previous configuration stays in effect.
//
// Only dynamically-safe settings should be consumed from reloads: rate
// limits, alert thresholds, risk overrides. Server and storage changes
// require a restart.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	path     string
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *slog.Logger
}

// NewWatcher creates a watcher for the config file at path.
//
// # Inputs
//
//   - path: The config file to watch. Must be non-empty.
//   - onChange: Called with each successfully reloaded configuration.
//   - log: Logger for reload outcomes. Nil uses slog.Default().
//
// # Outputs
//
//   - *Watcher: Ready-to-start watcher.
//   - error: Non-nil if the underlying fsnotify watcher cannot be created.
func NewWatcher(path string, onChange func(*Config), log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fsw,
		debounce: DefaultDebounceWindow,
		log:      log,
	}, nil
}

// Start begins watching. Blocks until the context is cancelled; run it
// in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.log.Warn("Failed to watch config directory",
			"dir", dir,
			"error", err)
		return
	}

	w.log.Debug("Watching config file",
		"path", w.path)

	base := filepath.Base(w.path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Config watcher error",
				"error", err)

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.log.Debug("Config watcher stopping")
			return
		}
	}
}

// reload re-runs Load and publishes the result. Failures keep the
// previous configuration.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("Config reload failed, keeping previous configuration",
			"path", w.path,
			"error", err)
		return
	}

	w.log.Info("Configuration reloaded",
		"path", w.path)
	w.onChange(cfg)
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
