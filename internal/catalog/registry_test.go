// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/oceanus/internal/models"
)

func testDescriptors() []models.DatasetDescriptor {
	return []models.DatasetDescriptor{
		{
			ID:          "sst",
			Name:        "Sea Surface Temperature",
			Variables:   []string{"sst"},
			FilePattern: "sst_YYYYMMDD.ogf",
		},
		{
			ID:                "acidity",
			Name:              "Ocean Acidity (hybrid)",
			Variables:         []string{"ph"},
			FilePattern:       "ph_YYYYMMDD.ogf",
			FallbackDatasets:  []string{"acidity_current", "acidity_historical"},
			FallbackSplitYear: 2003,
		},
		{
			ID:          "acidity_current",
			Name:        "Ocean Acidity (current era)",
			Variables:   []string{"ph"},
			FilePattern: "ph_cur_YYYYMMDD.ogf",
		},
		{
			ID:          "acidity_historical",
			Name:        "Ocean Acidity (historical)",
			Variables:   []string{"ph"},
			FilePattern: "ph_hist_YYYYMMDD.ogf",
		},
	}
}

func TestNew_LookupAndOrder(t *testing.T) {
	r, err := New(testDescriptors())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d, err := r.Get("sst")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Name != "Sea Surface Temperature" {
		t.Errorf("unexpected descriptor %+v", d)
	}

	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}

	all := r.All()
	if len(all) != 4 || all[0].ID != "sst" || all[1].ID != "acidity" {
		t.Errorf("catalog order not preserved: %v", all)
	}
}

func TestNew_RejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		mut  func([]models.DatasetDescriptor) []models.DatasetDescriptor
	}{
		{"duplicate id", func(ds []models.DatasetDescriptor) []models.DatasetDescriptor {
			return append(ds, ds[0])
		}},
		{"missing placeholder", func(ds []models.DatasetDescriptor) []models.DatasetDescriptor {
			ds[0].FilePattern = "sst_latest.ogf"
			return ds
		}},
		{"no variables", func(ds []models.DatasetDescriptor) []models.DatasetDescriptor {
			ds[0].Variables = nil
			return ds
		}},
		{"unknown fallback", func(ds []models.DatasetDescriptor) []models.DatasetDescriptor {
			ds[1].FallbackDatasets = []string{"ghost"}
			return ds
		}},
		{"self fallback", func(ds []models.DatasetDescriptor) []models.DatasetDescriptor {
			ds[1].FallbackDatasets = []string{"acidity"}
			return ds
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.mut(testDescriptors())); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFallbackOrder_SplitYear(t *testing.T) {
	r, err := New(testDescriptors())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, _ := r.Get("acidity")

	before := r.FallbackOrder(d, time.Date(1998, 6, 1, 0, 0, 0, 0, time.UTC))
	if before[0] != "acidity_historical" || before[1] != "acidity_current" {
		t.Errorf("pre-split order = %v, want historical first", before)
	}

	after := r.FallbackOrder(d, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))
	if after[0] != "acidity_current" || after[1] != "acidity_historical" {
		t.Errorf("post-split order = %v, want current first", after)
	}

	// Ordering must not mutate the descriptor.
	if d.FallbackDatasets[0] != "acidity_current" {
		t.Error("FallbackOrder mutated the descriptor")
	}

	sst, _ := r.Get("sst")
	if got := r.FallbackOrder(sst, time.Now()); got != nil {
		t.Errorf("expected nil chain for dataset without fallbacks, got %v", got)
	}
}

func TestLoad_YAML(t *testing.T) {
	content := `datasets:
  - id: sst
    name: Sea Surface Temperature
    variables: [sst]
    file_pattern: sst_YYYYMMDD.ogf
    resolution: 0.25deg
  - id: microplastics
    name: Microplastics Concentration
    variables: [microplastics]
    file_pattern: mp_YYYYMMDD.ogf
    irregular: true
    max_match_distance_deg: 5.0
`
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("loaded %d datasets, want 2", r.Len())
	}

	mp, err := r.Get("microplastics")
	if err != nil {
		t.Fatal(err)
	}
	if !mp.Irregular || mp.MatchCutoff() != 5.0 {
		t.Errorf("irregular metadata lost: %+v", mp)
	}

	sst, _ := r.Get("sst")
	if sst.MatchCutoff() != models.DefaultMaxMatchDistanceDeg {
		t.Errorf("default cutoff = %v", sst.MatchCutoff())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing catalog file")
	}
}
