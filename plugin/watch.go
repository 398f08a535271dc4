// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of filesystem events an editor
// emits while saving a config file into one reload.
const debounceDelay = time.Second

// Watch reloads a plugin when its config file under ConfigDir
// changes. Blocks until ctx is done. Reload failures are logged and
// leave the previous instance running.
func (r *Registry) Watch(ctx context.Context) error {
	if r.configDir == "" {
		return fmt.Errorf("plugin: no config dir to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("plugin: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.configDir); err != nil {
		return fmt.Errorf("plugin: watching %s: %w", r.configDir, err)
	}
	r.logger.Info("watching plugin configs", "dir", r.configDir)

	var pendingMu sync.Mutex
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := pluginNameForConfig(event.Name)
			if name == "" {
				continue
			}
			r.mu.RLock()
			_, known := r.entries[name]
			r.mu.RUnlock()
			if !known {
				continue
			}

			pendingMu.Lock()
			if pending[name] {
				pendingMu.Unlock()
				continue
			}
			pending[name] = true
			pendingMu.Unlock()

			go func(name string) {
				select {
				case <-ctx.Done():
					return
				case <-r.clock.After(debounceDelay):
				}
				pendingMu.Lock()
				delete(pending, name)
				pendingMu.Unlock()

				if err := r.Reload(name); err != nil {
					r.logger.Error("hot reload failed", "plugin", name, "error", err)
				} else {
					r.logger.Info("hot reloaded plugin", "plugin", name)
				}
			}(name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "error", err)
		}
	}
}

// pluginNameForConfig maps a config file path to its plugin name, or
// "" for files that are not plugin configs.
func pluginNameForConfig(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{".yml", ".yaml"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return ""
}
