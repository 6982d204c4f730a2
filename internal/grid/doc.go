// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

/*
Package grid reads Oceanus grid files (OGF) and resolves arbitrary
coordinates to the nearest grid cell or sample point.

# File format

An OGF file is a fixed-layout little-endian container holding one dated
snapshot of a dataset's variables:

	magic "OGF1"
	uint16 version (currently 1)
	uint16 flags (bit 0: irregular discrete-sample file)
	int64  unix timestamp of the snapshot
	uint32 nLat, uint32 nLon (irregular files: nObs in both)
	float64[nLat] latitudes, float64[nLon] longitudes
	uint16 variable count, then per variable:
	  string name, units, long_name (uint16 length prefix each)
	  float64 fill value
	  float32[nLat*nLon] plane (irregular files: float32[nObs])

Regular grids may store either axis ascending or descending and either
longitude convention (-180..180 or 0..360); CoordinateGrid normalizes
the query, not the file.

# Nearest-neighbor resolution

CoordinateGrid.FindNearest is O(log n) per axis for monotonic grids
(binary search). Irregular files fall back to a full distance scan with
a caller-supplied cutoff so that a sample 40 degrees away is reported
as no match rather than returned as a misleading answer.

# Pool

Pool caches open files with reference counts. A file stays resident
while any query holds a Handle and is dropped by Sweep only once idle
and unreferenced, so a recovery rewrite never invalidates data under a
reader mid-extraction.
*/
package grid
