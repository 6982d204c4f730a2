// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package models defines the shared data types exchanged between the
// extraction, resolution, integrity and recovery components.
package models

// DateRange bounds a dataset's temporal coverage. Dates are ISO
// YYYY-MM-DD strings; either bound may be empty for open-ended coverage.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// DatasetDescriptor is a static catalog entry describing one dataset.
// Descriptors are loaded once at startup and never mutated afterwards;
// every component receives the same registry by reference.
type DatasetDescriptor struct {
	// ID is the unique dataset identifier, e.g. "sst" or "acidity_current".
	ID string `json:"id" koanf:"id"`

	// Name is the human-readable dataset name.
	Name string `json:"name" koanf:"name"`

	// Variables is the ordered list of variable names extracted per point.
	Variables []string `json:"variables" koanf:"variables"`

	// FilePattern is the file name pattern with a literal YYYYMMDD
	// placeholder for the embedded date, e.g. "sst_YYYYMMDD.ogf".
	FilePattern string `json:"file_pattern" koanf:"file_pattern"`

	// Resolution is a human-readable spatial resolution label, e.g. "0.25deg".
	Resolution string `json:"resolution" koanf:"resolution"`

	// Coverage optionally bounds the dataset's temporal coverage.
	Coverage *DateRange `json:"coverage,omitempty" koanf:"coverage"`

	// FallbackDatasets lists alternative dataset IDs tried in order when
	// no file can be resolved for this dataset. By convention the
	// current-era variant is listed first; for requested dates before
	// FallbackSplitYear the order is reversed so the historical variant
	// is preferred.
	FallbackDatasets []string `json:"fallback_datasets,omitempty" koanf:"fallback_datasets"`

	// FallbackSplitYear is the year that separates historical from
	// current coverage when ordering the fallback chain. Zero disables
	// date-dependent reordering.
	FallbackSplitYear int `json:"fallback_split_year,omitempty" koanf:"fallback_split_year"`

	// SourceURL is the upstream URL template used to refetch missing or
	// corrupted files, with a literal YYYYMMDD placeholder. Empty for
	// datasets with no refetchable upstream.
	SourceURL string `json:"source_url,omitempty" koanf:"source_url"`

	// Irregular marks discrete-sample datasets whose files carry one
	// coordinate pair per observation instead of a regular grid.
	Irregular bool `json:"irregular,omitempty" koanf:"irregular"`

	// MaxMatchDistanceDeg is the nearest-match cutoff in degrees for
	// irregular datasets. Matches farther than this yield no-data
	// instead of a misleadingly distant sample. Zero means the default.
	MaxMatchDistanceDeg float64 `json:"max_match_distance_deg,omitempty" koanf:"max_match_distance_deg"`
}

// DefaultMaxMatchDistanceDeg is the nearest-match cutoff applied to
// discrete-sample datasets that do not configure their own.
const DefaultMaxMatchDistanceDeg = 2.0

// MatchCutoff returns the effective nearest-match cutoff in degrees.
func (d *DatasetDescriptor) MatchCutoff() float64 {
	if d.MaxMatchDistanceDeg > 0 {
		return d.MaxMatchDistanceDeg
	}
	return DefaultMaxMatchDistanceDeg
}
