// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package services

import (
	"context"
	"time"

	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/recovery"
)

// RecoveryService runs the recovery scheduler on a fixed interval. The
// first run starts one interval after startup so a crash-looping
// process does not hammer upstreams.
type RecoveryService struct {
	scheduler *recovery.Scheduler
	interval  time.Duration
}

// NewRecoveryService creates the periodic recovery runner. A
// non-positive interval selects six hours.
func NewRecoveryService(s *recovery.Scheduler, interval time.Duration) *RecoveryService {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &RecoveryService{scheduler: s, interval: interval}
}

// Serve implements suture.Service.
func (r *RecoveryService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := r.scheduler.Run(ctx)
			if err != nil {
				logging.Error().Err(err).Msg("scheduled recovery run failed")
				continue
			}
			logging.Info().Int("completed", report.Completed).Int("failed", report.Failed).Msg("scheduled recovery run finished")
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (r *RecoveryService) String() string {
	return "recovery-scheduler"
}
