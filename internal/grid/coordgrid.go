// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package grid

import (
	"math"
	"sort"
)

// Match is the result of a nearest-neighbor lookup.
type Match struct {
	// LatIdx and LonIdx are the grid indices of the matched cell. For
	// irregular files both hold the sample index.
	LatIdx int
	LonIdx int

	// Lat and Lon are the actual matched coordinates.
	Lat float64
	Lon float64

	// Distance is the flat angular distance in degrees between the
	// query and the match. Always non-negative.
	Distance float64
}

// CoordinateGrid indexes a file's coordinate arrays for nearest-cell
// resolution. Build once per file and reuse for all queries; the type
// is immutable after construction.
type CoordinateGrid struct {
	lats []float64
	lons []float64

	latAsc    bool
	lonAsc    bool
	irregular bool

	// threeSixty is true when the file stores longitudes in [0, 360).
	threeSixty bool
}

// BuildCoordinateGrid derives the per-file spatial index from a parsed
// file's coordinate arrays.
func BuildCoordinateGrid(f *File) *CoordinateGrid {
	g := &CoordinateGrid{
		lats:      f.Lats,
		lons:      f.Lons,
		irregular: f.Irregular,
	}

	if !g.irregular {
		g.latAsc = ascending(g.lats)
		g.lonAsc = ascending(g.lons)
	}
	for _, lon := range g.lons {
		if lon > 180 {
			g.threeSixty = true
			break
		}
	}
	return g
}

// ascending reports whether a monotonic axis runs low to high.
func ascending(axis []float64) bool {
	return len(axis) < 2 || axis[0] <= axis[len(axis)-1]
}

// NormalizeLon maps a longitude to [-180, 180].
func NormalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// queryLon maps the caller's longitude into the file's convention.
func (g *CoordinateGrid) queryLon(lon float64) float64 {
	lon = NormalizeLon(lon)
	if g.threeSixty && lon < 0 {
		lon += 360
	}
	return lon
}

// FindNearest resolves (lat, lon) to the nearest grid cell. For regular
// grids the lookup is a binary search per axis and always finds a
// match; the returned indices are always within array bounds. Irregular
// files are scanned in full; use FindNearestWithin to apply a cutoff.
func (g *CoordinateGrid) FindNearest(lat, lon float64) Match {
	m, _ := g.FindNearestWithin(lat, lon, math.Inf(1))
	return m
}

// FindNearestWithin resolves (lat, lon) to the nearest grid cell or
// sample point, rejecting matches farther than maxDistDeg. The second
// return is false when nothing lies within the cutoff.
func (g *CoordinateGrid) FindNearestWithin(lat, lon, maxDistDeg float64) (Match, bool) {
	if g.irregular {
		return g.scanNearest(lat, lon, maxDistDeg)
	}

	qLon := g.queryLon(lon)
	i := nearestIndex(g.lats, g.latAsc, lat)
	j := nearestIndex(g.lons, g.lonAsc, qLon)

	m := Match{
		LatIdx:   i,
		LonIdx:   j,
		Lat:      g.lats[i],
		Lon:      NormalizeLon(g.lons[j]),
		Distance: angularDistance(lat, qLon, g.lats[i], g.lons[j]),
	}
	return m, m.Distance <= maxDistDeg
}

// scanNearest is the irregular-file fallback: a full distance scan over
// per-observation coordinates.
func (g *CoordinateGrid) scanNearest(lat, lon, maxDistDeg float64) (Match, bool) {
	qLon := g.queryLon(lon)

	best := Match{LatIdx: -1, LonIdx: -1, Distance: math.Inf(1)}
	for i := range g.lats {
		d := angularDistance(lat, qLon, g.lats[i], g.lons[i])
		if d < best.Distance {
			best = Match{
				LatIdx:   i,
				LonIdx:   i,
				Lat:      g.lats[i],
				Lon:      NormalizeLon(g.lons[i]),
				Distance: d,
			}
		}
	}

	if best.LatIdx < 0 || best.Distance > maxDistDeg {
		return best, false
	}
	return best, true
}

// nearestIndex finds the index of the axis value closest to v using
// binary search over the monotonic axis.
func nearestIndex(axis []float64, asc bool, v float64) int {
	n := len(axis)
	if n == 1 {
		return 0
	}

	var i int
	if asc {
		i = sort.SearchFloat64s(axis, v)
	} else {
		// Descending axis: search for the first element <= v.
		i = sort.Search(n, func(k int) bool { return axis[k] <= v })
	}

	// i is the insertion point; the nearest value is at i-1 or i.
	if i == 0 {
		return 0
	}
	if i == n {
		return n - 1
	}
	if math.Abs(axis[i]-v) < math.Abs(axis[i-1]-v) {
		return i
	}
	return i - 1
}

// angularDistance is the flat degree-space distance between two
// coordinates, with the longitude delta wrapped across the antimeridian.
func angularDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat1 - lat2
	dLon := math.Abs(lon1 - lon2)
	if dLon > 180 {
		dLon = 360 - dLon
	}
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
