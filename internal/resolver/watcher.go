// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/oceanus/internal/catalog"
	"github.com/tomtom215/oceanus/internal/logging"
)

// ChangeFunc is called when a file in a watched dataset directory is
// created, written, removed or renamed. Callers use it to drop derived
// state such as pooled grid handles and cached point values.
type ChangeFunc func(datasetID, path string)

// Watcher invalidates memoized validation verdicts when dataset files
// change on disk.
type Watcher struct {
	resolver *Resolver
	registry *catalog.Registry
	onChange ChangeFunc
}

// NewWatcher creates a Watcher over every dataset directory in the
// registry. onChange may be nil.
func NewWatcher(r *Resolver, reg *catalog.Registry, onChange ChangeFunc) *Watcher {
	return &Watcher{resolver: r, registry: reg, onChange: onChange}
}

// Run watches dataset directories until the context is cancelled.
// Dataset directories missing at startup are skipped; the periodic
// recovery scan covers datasets that appear later.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	watched := 0
	for _, ds := range w.registry.All() {
		dir := w.resolver.DatasetDir(ds.ID)
		if _, err := os.Stat(dir); err != nil {
			logging.Debug().Str("dataset", ds.ID).Str("dir", dir).Msg("dataset directory absent, not watching")
			continue
		}
		if err := fw.Add(dir); err != nil {
			logging.Warn().Err(err).Str("dataset", ds.ID).Str("dir", dir).Msg("failed to watch dataset directory")
			continue
		}
		watched++
	}
	logging.Info().Int("directories", watched).Msg("file watcher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Ignore in-progress atomic writes; the rename to the
			// final name arrives as its own event.
			if strings.HasSuffix(ev.Name, ".tmp") {
				continue
			}
			dsID := filepath.Base(filepath.Dir(ev.Name))
			logging.Debug().Str("dataset", dsID).Str("path", ev.Name).Str("op", ev.Op.String()).Msg("dataset file changed")
			w.resolver.Invalidate(ev.Name)
			if w.onChange != nil {
				w.onChange(dsID, ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(err).Msg("file watcher error")
		}
	}
}
