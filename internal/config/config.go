// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package config loads and validates the Oceanus configuration.
//
// Configuration is merged from three layers, lowest priority first:
// built-in defaults, an optional YAML config file, and OCEANUS_
// environment variables. The merged result is validated before use;
// an invalid configuration fails startup with every offending field
// listed.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Data       DataConfig       `koanf:"data"`
	Cache      CacheConfig      `koanf:"cache"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Integrity  IntegrityConfig  `koanf:"integrity"`
	Recovery   RecoveryConfig   `koanf:"recovery"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// RequestsPerMinute is the per-IP API rate limit.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"min=1"`

	// CORSOrigins lists allowed origins; ["*"] allows any.
	CORSOrigins []string `koanf:"cors_origins"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// LoggingConfig configures the zerolog backend.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DataConfig locates on-disk state.
type DataConfig struct {
	// Root is the directory holding one subdirectory per dataset.
	Root string `koanf:"root" validate:"required"`

	// CatalogPath is the dataset catalog YAML file.
	CatalogPath string `koanf:"catalog_path" validate:"required"`

	// LedgerPath is the BadgerDB directory for recovery task history.
	LedgerPath string `koanf:"ledger_path" validate:"required"`
}

// CacheConfig sizes the point cache.
type CacheConfig struct {
	// BudgetBytes bounds the cache's resident size.
	BudgetBytes int64 `koanf:"budget_bytes" validate:"min=1024"`

	// TTL is the default entry lifetime.
	TTL time.Duration `koanf:"ttl" validate:"min=1s"`

	// JanitorInterval is how often expired entries are swept.
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"min=1s"`
}

// ExtractionConfig tunes the orchestrator.
type ExtractionConfig struct {
	// BranchTimeout bounds each dataset branch of a multi-dataset
	// extraction.
	BranchTimeout time.Duration `koanf:"branch_timeout" validate:"min=100ms"`

	// PoolIdleTTL is how long unreferenced grid files stay resident.
	PoolIdleTTL time.Duration `koanf:"pool_idle_ttl" validate:"min=1s"`
}

// IntegrityConfig bounds acceptable file sizes.
type IntegrityConfig struct {
	MinGridFileBytes  int64 `koanf:"min_grid_file_bytes"`
	MaxGridFileBytes  int64 `koanf:"max_grid_file_bytes"`
	MinImageFileBytes int64 `koanf:"min_image_file_bytes"`
	MaxImageFileBytes int64 `koanf:"max_image_file_bytes"`
}

// RecoveryConfig tunes the gap-detection and repair scheduler.
type RecoveryConfig struct {
	Enabled bool `koanf:"enabled"`

	// ScanInterval is how often the scheduler scans for gaps.
	ScanInterval time.Duration `koanf:"scan_interval" validate:"min=1m"`

	// MaxAttempts bounds retries per task.
	MaxAttempts int `koanf:"max_attempts" validate:"min=1,max=10"`

	// Workers bounds concurrent task execution.
	Workers int `koanf:"workers" validate:"min=1,max=64"`

	// AttemptTimeout bounds a single task attempt.
	AttemptTimeout time.Duration `koanf:"attempt_timeout" validate:"min=1s"`

	// DownloadsPerMinute throttles downloader calls across all workers.
	DownloadsPerMinute int `koanf:"downloads_per_minute" validate:"min=1"`

	// BackoffCap bounds the exponential retry delay.
	BackoffCap time.Duration `koanf:"backoff_cap"`
}

// Default returns the built-in defaults, overridden by file and
// environment layers during Load.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8420,
			RequestsPerMinute: 300,
			CORSOrigins:       []string{"*"},
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Data: DataConfig{
			Root:        "/var/lib/oceanus/data",
			CatalogPath: "/etc/oceanus/datasets.yaml",
			LedgerPath:  "/var/lib/oceanus/ledger",
		},
		Cache: CacheConfig{
			BudgetBytes:     64 << 20,
			TTL:             30 * time.Minute,
			JanitorInterval: time.Minute,
		},
		Extraction: ExtractionConfig{
			BranchTimeout: 5 * time.Second,
			PoolIdleTTL:   10 * time.Minute,
		},
		Integrity: IntegrityConfig{
			MinGridFileBytes:  64,
			MaxGridFileBytes:  2 << 30,
			MinImageFileBytes: 32,
			MaxImageFileBytes: 512 << 20,
		},
		Recovery: RecoveryConfig{
			Enabled:            true,
			ScanInterval:       6 * time.Hour,
			MaxAttempts:        3,
			Workers:            4,
			AttemptTimeout:     2 * time.Minute,
			DownloadsPerMinute: 30,
			BackoffCap:         5 * time.Minute,
		},
	}
}
