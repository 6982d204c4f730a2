// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package models

// Source values reported on a PointResult.
const (
	// SourceCache marks a result served from the point cache.
	SourceCache = "cache"

	// SourceNoData marks a well-formed result carrying no values.
	SourceNoData = "no-data"
)

// DateNoData is reported in PointResult.Date when the nearest sample of
// a discrete-sample dataset lies beyond the match cutoff.
const DateNoData = "no-data"

// DataValue is one extracted variable value. Missing values are
// represented as (Value=nil, Valid=false), never as a sentinel numeric.
type DataValue struct {
	Value    *float64 `json:"value"`
	Units    string   `json:"units,omitempty"`
	LongName string   `json:"long_name,omitempty"`
	Valid    bool     `json:"valid"`
}

// Location is a decimal-degree coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FallbackInfo annotates a PointResult produced through a dataset
// fallback chain.
type FallbackInfo struct {
	// Requested is the dataset the caller originally asked for.
	Requested string `json:"requested"`

	// Used is the fallback dataset that produced the result, empty when
	// every fallback failed.
	Used string `json:"used,omitempty"`

	// Attempted lists the fallback datasets tried, in order.
	Attempted []string `json:"attempted"`
}

// PointResult is the value returned for one point extraction. The type
// is total: extraction paths that find nothing return a populated
// result with Source=SourceNoData rather than an error.
type PointResult struct {
	Dataset string `json:"dataset"`

	// RequestedLocation is the coordinate the caller asked for.
	RequestedLocation Location `json:"requested_location"`

	// ActualLocation is the matched grid cell or sample coordinate.
	// Nil when no data was found.
	ActualLocation *Location `json:"actual_location,omitempty"`

	// Date is the ISO date of the file the values came from, or
	// DateNoData when nothing matched.
	Date string `json:"date"`

	// Values maps variable name to its extracted value.
	Values map[string]DataValue `json:"values"`

	// Source is SourceCache, the backing file path, or SourceNoData.
	Source string `json:"source"`

	// Fallback is set when the result was produced (or attempted)
	// through a dataset fallback chain.
	Fallback *FallbackInfo `json:"fallback,omitempty"`

	// ExtractionMs is the time spent producing this result.
	ExtractionMs float64 `json:"extraction_time_ms"`
}

// NoData returns a well-formed empty result for the given request.
func NoData(dataset string, lat, lon float64, date string) PointResult {
	return PointResult{
		Dataset:           dataset,
		RequestedLocation: Location{Lat: lat, Lon: lon},
		Date:              date,
		Values:            map[string]DataValue{},
		Source:            SourceNoData,
	}
}

// BranchError is the structured per-dataset error recorded by a
// multi-dataset extraction when one branch fails or times out.
type BranchError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BatchResult aggregates a multi-dataset extraction. Partial success is
// the normal case: every requested dataset appears in exactly one of
// Results or Errors.
type BatchResult struct {
	Results map[string]PointResult `json:"results"`
	Errors  map[string]BranchError `json:"errors,omitempty"`

	// TotalExtractionMs is wall-clock time across all branches, not the sum.
	TotalExtractionMs float64 `json:"total_extraction_time_ms"`
}
