// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package services

import (
	"context"

	"github.com/tomtom215/oceanus/internal/resolver"
)

// WatcherService runs the dataset directory watcher under supervision
// so a watcher failure is restarted instead of silently leaving stale
// validation verdicts behind.
type WatcherService struct {
	watcher *resolver.Watcher
}

// NewWatcherService wraps the resolver's file watcher.
func NewWatcherService(w *resolver.Watcher) *WatcherService {
	return &WatcherService{watcher: w}
}

// Serve implements suture.Service.
func (w *WatcherService) Serve(ctx context.Context) error {
	return w.watcher.Run(ctx)
}

// String implements fmt.Stringer for suture's event log.
func (w *WatcherService) String() string {
	return "dataset-watcher"
}
