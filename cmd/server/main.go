// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package main is the entry point for the Oceanus server.
//
// Oceanus extracts point values (temperature, salinity, currents,
// acidity, microplastic concentrations and more) from dated gridded
// archives of oceanographic data, serves them over HTTP with caching
// and dataset fallback, and continuously repairs its on-disk holdings.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file and OCEANUS_ environment
//     variables (Koanf v2), validated before use
//  2. Dataset catalog: one descriptor per dataset from datasets.yaml
//  3. Resolver and integrity validator over the data root
//  4. Grid pool and point cache
//  5. Recovery: BadgerDB ledger, HTTP downloader behind a circuit
//     breaker, gap/corruption scanner (optional)
//  6. Supervision tree: file watcher (data layer), recovery scheduler
//     and cache janitor (engine layer), HTTP server (api layer)
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables, e.g. OCEANUS_SERVER_PORT=8420
//   - Config file (config.yaml, or OCEANUS_CONFIG=/path/to/config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server stops accepting connections and drains in-flight requests,
// then the supervision tree winds down and the ledger is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/oceanus/internal/api"
	"github.com/tomtom215/oceanus/internal/catalog"
	"github.com/tomtom215/oceanus/internal/config"
	"github.com/tomtom215/oceanus/internal/extract"
	"github.com/tomtom215/oceanus/internal/grid"
	"github.com/tomtom215/oceanus/internal/integrity"
	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/pointcache"
	"github.com/tomtom215/oceanus/internal/recovery"
	"github.com/tomtom215/oceanus/internal/resolver"
	"github.com/tomtom215/oceanus/internal/supervisor"
	"github.com/tomtom215/oceanus/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("data_root", cfg.Data.Root).Msg("oceanus starting")

	registry, err := catalog.Load(cfg.Data.CatalogPath)
	if err != nil {
		return fmt.Errorf("load dataset catalog: %w", err)
	}
	logging.Info().Int("datasets", registry.Len()).Msg("dataset catalog loaded")

	validator := integrity.New(integrity.Config{
		MinGridFileBytes:  cfg.Integrity.MinGridFileBytes,
		MaxGridFileBytes:  cfg.Integrity.MaxGridFileBytes,
		MinImageFileBytes: cfg.Integrity.MinImageFileBytes,
		MaxImageFileBytes: cfg.Integrity.MaxImageFileBytes,
	})
	fileResolver := resolver.New(cfg.Data.Root, validator)
	pool := grid.NewPool(cfg.Extraction.PoolIdleTTL)
	cache := pointcache.New(cfg.Cache.BudgetBytes, cfg.Cache.TTL)
	orchestrator := extract.New(registry, fileResolver, pool, cache, cfg.Extraction.BranchTimeout)

	// Any on-disk change to a dataset file invalidates every layer of
	// derived state for it.
	onChange := func(datasetID, path string) {
		pool.Invalidate(path)
		cache.InvalidateDataset(datasetID)
	}

	var scheduler *recovery.Scheduler
	var ledger *recovery.Ledger
	if cfg.Recovery.Enabled {
		ledger, err = recovery.OpenLedger(cfg.Data.LedgerPath)
		if err != nil {
			return fmt.Errorf("open recovery ledger: %w", err)
		}
		defer ledger.Close()

		downloader := recovery.NewBreakerDownloader("downloader", recovery.NewHTTPDownloader(nil))
		scheduler = recovery.New(registry, fileResolver, validator, ledger, downloader, nil, recovery.Config{
			MaxAttempts:        cfg.Recovery.MaxAttempts,
			Workers:            cfg.Recovery.Workers,
			AttemptTimeout:     cfg.Recovery.AttemptTimeout,
			DownloadsPerMinute: cfg.Recovery.DownloadsPerMinute,
			BackoffCap:         cfg.Recovery.BackoffCap,
		})
		scheduler.OnRepaired = onChange
	}

	handler := api.NewHandler(orchestrator, scheduler, cache)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg.Server, handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(slog.New(slog.NewJSONHandler(os.Stderr, nil)), supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewWatcherService(resolver.NewWatcher(fileResolver, registry, onChange)))
	tree.AddEngineService(services.NewJanitorService(cache, pool, cfg.Cache.JanitorInterval))
	if scheduler != nil {
		tree.AddEngineService(services.NewRecoveryService(scheduler, cfg.Recovery.ScanInterval))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("oceanus listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervision tree: %w", err)
	}
	logging.Info().Msg("oceanus stopped")
	return nil
}
