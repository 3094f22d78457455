// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long Watch waits after the last write before
// reloading.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Logger   zerolog.Logger

	// OnChange receives every configuration that loads and validates.
	OnChange func(*Config)
}

// Run watches until ctx ends. The parent directory is watched rather than
// the file so editors that replace the file on save keep working. Invalid
// files are logged and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Path == "" {
		return errors.New("config: watch path is empty")
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := w.Logger.With().Str("component", "config").Str("path", w.Path).Logger()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "config: create watcher")
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return errors.Wrap(err, "config: watch directory")
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			cfg, err := LoadFromPath(target)
			if err != nil {
				log.Warn().Err(err).Msg("config reload failed, keeping previous")
				continue
			}
			log.Info().Msg("config reloaded")
			if w.OnChange != nil {
				w.OnChange(cfg)
			}
		}
	}
}
