// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"zonesync/pkg/log"

	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors produce on save
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config file when it changes and hands the new config to
// onChange. The directory is watched so atomic replace-by-rename is seen.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*ConfigFile)) error {
	logger := log.NewScopedLogger("[config/watch]", "")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}
	logger.Verbose("Watching %s for changes", absPath)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			absEvent, _ := filepath.Abs(event.Name)
			if absEvent != absPath || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Trace("fsnotify event: Name='%s', Op=%v", event.Name, event.Op)
			pending = time.After(reloadDebounce)
		case <-pending:
			pending = nil
			cfg, err := LoadConfigFile(path)
			if err != nil {
				logger.Error("Reload failed, keeping current settings: %v", err)
				continue
			}
			logger.Info("Configuration reloaded from %s", path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("File watch error: %v", err)
		}
	}
}
