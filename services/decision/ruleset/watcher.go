// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces editor write bursts into one reload.
const reloadDebounce = 250 * time.Millisecond

// Watcher reloads an on-disk rule override file when it changes and hands
// each successfully parsed configuration to a callback. A file that fails
// to parse is logged and skipped; the previous configuration stays active.
//
// The watcher never mutates a live engine: the callback is expected to
// build a fresh engine instance and swap it atomically.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*Config)
}

// Watch starts watching path and invokes onLoad for every valid reload.
// The initial file content is loaded and delivered before Watch returns.
// Watching stops when ctx is canceled.
func Watch(ctx context.Context, path string, onLoad func(*Config)) (*Watcher, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("initial rule override load failed: %w", err)
	}
	onLoad(cfg)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create the rule file watcher: %w", err)
	}
	// Watch the parent directory: editors replace files via rename, which
	// drops a watch registered on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch the rule override directory: %w", err)
	}

	w := &Watcher{path: path, watcher: fsw, onLoad: onLoad}
	go w.run(ctx)
	slog.Info("Watching rule override file", "path", path)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	reload := func() {
		cfg, err := LoadFile(w.path)
		if err != nil {
			slog.Error("Rule override reload failed, keeping previous rules",
				"path", w.path, "error", err)
			return
		}
		slog.Info("Reloaded rule override file", "path", w.path, "rules", len(cfg.Rules))
		w.onLoad(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Rule file watcher error", "error", err)
		}
	}
}
