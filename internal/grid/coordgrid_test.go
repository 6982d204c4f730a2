// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package grid

import (
	"math"
	"math/rand"
	"testing"
)

func regularFile(lats, lons []float64) *File {
	return &File{Lats: lats, Lons: lons}
}

func TestFindNearest_AscendingAxes(t *testing.T) {
	g := BuildCoordinateGrid(regularFile(
		[]float64{30, 32, 34, 36, 38},
		[]float64{-80, -78, -76, -74},
	))

	m := g.FindNearest(36.0, -75.0)
	if m.Lat != 36 {
		t.Errorf("matched lat = %v, want 36", m.Lat)
	}
	// -75 is equidistant from -76 and -74; either is acceptable but the
	// match must be one of them.
	if m.Lon != -76 && m.Lon != -74 {
		t.Errorf("matched lon = %v, want -76 or -74", m.Lon)
	}
	if m.Distance < 0 || m.Distance > 1.5 {
		t.Errorf("distance = %v, want within one cell", m.Distance)
	}
}

func TestFindNearest_DescendingLatitude(t *testing.T) {
	g := BuildCoordinateGrid(regularFile(
		[]float64{38, 36, 34, 32, 30},
		[]float64{-80, -78, -76, -74},
	))

	m := g.FindNearest(31.2, -77.9)
	if m.Lat != 32 {
		t.Errorf("matched lat = %v, want 32", m.Lat)
	}
	if m.Lon != -78 {
		t.Errorf("matched lon = %v, want -78", m.Lon)
	}
	if m.LatIdx != 3 {
		t.Errorf("lat index = %d, want 3", m.LatIdx)
	}
}

func TestFindNearest_ZeroTo360Convention(t *testing.T) {
	// File stores longitudes 0..360, caller uses -180..180.
	g := BuildCoordinateGrid(regularFile(
		[]float64{-10, 0, 10},
		[]float64{340, 345, 350, 355},
	))

	m := g.FindNearest(0, -12.5) // -12.5 == 347.5 in file convention
	if m.Lon != -15 && m.Lon != -10 {
		t.Errorf("matched lon = %v, want -15 or -10 (file 345/350)", m.Lon)
	}
	if m.Distance > 3 {
		t.Errorf("distance = %v, expected nearby match across conventions", m.Distance)
	}
}

func TestFindNearest_AntimeridianWrap(t *testing.T) {
	g := BuildCoordinateGrid(regularFile(
		[]float64{0},
		[]float64{-179, 0, 179},
	))

	m := g.FindNearest(0, 179.5)
	if m.Lon != 179 {
		t.Errorf("matched lon = %v, want 179", m.Lon)
	}
	if m.Distance > 1 {
		t.Errorf("distance = %v, wrap not applied", m.Distance)
	}
}

func TestFindNearestWithin_IrregularCutoff(t *testing.T) {
	f := &File{
		Irregular: true,
		Lats:      []float64{10, 50, -40},
		Lons:      []float64{20, 60, -30},
	}
	g := BuildCoordinateGrid(f)

	// Nearest sample to (11, 21) is (10, 20), ~1.4 degrees away.
	m, ok := g.FindNearestWithin(11, 21, 2.0)
	if !ok {
		t.Fatal("expected match within cutoff")
	}
	if m.LatIdx != 0 || m.Lat != 10 || m.Lon != 20 {
		t.Errorf("unexpected match %+v", m)
	}

	// Nothing within 2 degrees of the mid-Pacific.
	if _, ok := g.FindNearestWithin(0, -150, 2.0); ok {
		t.Error("expected no match beyond cutoff")
	}
}

// TestFindNearest_BoundsProperty checks the §8-style property: every
// in-range query yields in-bounds indices and a non-negative distance.
func TestFindNearest_BoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	grids := []*CoordinateGrid{
		BuildCoordinateGrid(regularFile(
			[]float64{-80, -40, 0, 40, 80},
			[]float64{-160, -80, 0, 80, 160},
		)),
		BuildCoordinateGrid(regularFile(
			[]float64{89, 45, 0, -45, -89},
			[]float64{0, 90, 180, 270},
		)),
	}

	for gi, g := range grids {
		for n := 0; n < 500; n++ {
			lat := rng.Float64()*180 - 90
			lon := rng.Float64()*360 - 180

			m := g.FindNearest(lat, lon)
			if m.LatIdx < 0 || m.LatIdx >= len(g.lats) {
				t.Fatalf("grid %d: lat index %d out of bounds for query (%v,%v)", gi, m.LatIdx, lat, lon)
			}
			if m.LonIdx < 0 || m.LonIdx >= len(g.lons) {
				t.Fatalf("grid %d: lon index %d out of bounds for query (%v,%v)", gi, m.LonIdx, lat, lon)
			}
			if m.Distance < 0 || math.IsNaN(m.Distance) {
				t.Fatalf("grid %d: negative or NaN distance %v", gi, m.Distance)
			}
		}
	}
}

func TestNormalizeLon(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{180, 180},
		{-180, -180},
		{190, -170},
		{350, -10},
		{-190, 170},
		{540, 180},
	}
	for _, tt := range tests {
		if got := NormalizeLon(tt.in); got != tt.want {
			t.Errorf("NormalizeLon(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNearestIndex(t *testing.T) {
	asc := []float64{1, 3, 5, 7}
	tests := []struct {
		v    float64
		want int
	}{
		{0, 0}, {1, 0}, {1.9, 0}, {2.1, 1}, {7, 3}, {100, 3},
	}
	for _, tt := range tests {
		if got := nearestIndex(asc, true, tt.v); got != tt.want {
			t.Errorf("nearestIndex(asc, %v) = %d, want %d", tt.v, got, tt.want)
		}
	}

	desc := []float64{7, 5, 3, 1}
	for _, tt := range []struct {
		v    float64
		want int
	}{
		{8, 0}, {7, 0}, {4.1, 1}, {3.9, 2}, {0, 3},
	} {
		if got := nearestIndex(desc, false, tt.v); got != tt.want {
			t.Errorf("nearestIndex(desc, %v) = %d, want %d", tt.v, got, tt.want)
		}
	}
}
