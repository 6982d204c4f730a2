// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package config

import (
	"fmt"

	"github.com/tomtom215/oceanus/internal/validation"
)

// Validate checks the configuration after all layers have been merged.
// Tag-driven checks run first, then cross-field constraints the tags
// cannot express. All failures for the tag pass are reported together.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Cache.JanitorInterval > c.Cache.TTL {
		return fmt.Errorf("config validation: cache.janitor_interval %s exceeds cache.ttl %s", c.Cache.JanitorInterval, c.Cache.TTL)
	}
	if c.Integrity.MinGridFileBytes >= c.Integrity.MaxGridFileBytes {
		return fmt.Errorf("config validation: integrity.min_grid_file_bytes %d must be below max_grid_file_bytes %d",
			c.Integrity.MinGridFileBytes, c.Integrity.MaxGridFileBytes)
	}
	if c.Integrity.MinImageFileBytes >= c.Integrity.MaxImageFileBytes {
		return fmt.Errorf("config validation: integrity.min_image_file_bytes %d must be below max_image_file_bytes %d",
			c.Integrity.MinImageFileBytes, c.Integrity.MaxImageFileBytes)
	}
	if c.Recovery.Enabled {
		if c.Recovery.AttemptTimeout <= 0 {
			return fmt.Errorf("config validation: recovery.attempt_timeout must be positive when recovery is enabled")
		}
		if c.Recovery.BackoffCap <= 0 {
			return fmt.Errorf("config validation: recovery.backoff_cap must be positive when recovery is enabled")
		}
	}
	return nil
}
