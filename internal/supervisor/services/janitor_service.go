// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package services

import (
	"context"
	"time"

	"github.com/tomtom215/oceanus/internal/grid"
	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/metrics"
	"github.com/tomtom215/oceanus/internal/pointcache"
)

// JanitorService periodically sweeps expired point cache entries and
// idle pooled grid files, and publishes cache gauges.
type JanitorService struct {
	cache    *pointcache.Cache
	pool     *grid.Pool
	interval time.Duration
}

// NewJanitorService creates a janitor. A non-positive interval selects
// one minute.
func NewJanitorService(cache *pointcache.Cache, pool *grid.Pool, interval time.Duration) *JanitorService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &JanitorService{cache: cache, pool: pool, interval: interval}
}

// Serve implements suture.Service.
func (j *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			expired := j.cache.RemoveExpired()
			released := j.pool.Sweep()
			stats := j.cache.GetStats()
			metrics.SetCacheGauges(stats.Entries, stats.CostBytes)
			if expired > 0 || released > 0 {
				logging.Debug().Int("expired_entries", expired).Int("released_grids", released).Msg("janitor sweep")
			}
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (j *JanitorService) String() string {
	return "cache-janitor"
}
