// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package extract

import "errors"

var (
	// ErrInvalidCoordinate indicates a latitude outside [-90, 90] or a
	// longitude outside [-180, 180].
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidDate indicates a date string that is not ISO YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")
)

// Branch error kinds reported by multi-dataset extractions.
const (
	KindUnknownDataset = "unknown_dataset"
	KindTimeout        = "timeout"
	KindCancelled      = "cancelled"
	KindInternal       = "internal"
)
