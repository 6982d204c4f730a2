// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package catalog holds the immutable dataset registry.
//
// The registry is built once at startup from the dataset catalog file
// and passed by reference to every component; nothing mutates it
// afterwards. This replaces any notion of a global mutable dataset
// configuration.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/oceanus/internal/models"
)

// ErrUnknownDataset is returned for lookups of dataset IDs not present
// in the catalog. This is a caller error and is never retried.
var ErrUnknownDataset = errors.New("unknown dataset")

// Registry is the immutable dataset catalog.
type Registry struct {
	byID  map[string]*models.DatasetDescriptor
	order []string
}

// New builds a registry from descriptors, validating internal
// consistency: unique IDs, a YYYYMMDD file pattern, at least one
// variable, and fallback chains that reference cataloged datasets.
func New(descriptors []models.DatasetDescriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]*models.DatasetDescriptor, len(descriptors))}

	for i := range descriptors {
		d := descriptors[i]
		if d.ID == "" {
			return nil, fmt.Errorf("descriptor %d has empty id", i)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate dataset id %q", d.ID)
		}
		if !strings.Contains(d.FilePattern, "YYYYMMDD") {
			return nil, fmt.Errorf("dataset %q: file pattern %q lacks YYYYMMDD placeholder", d.ID, d.FilePattern)
		}
		if len(d.Variables) == 0 {
			return nil, fmt.Errorf("dataset %q declares no variables", d.ID)
		}
		r.byID[d.ID] = &d
		r.order = append(r.order, d.ID)
	}

	for _, d := range r.byID {
		for _, fb := range d.FallbackDatasets {
			if fb == d.ID {
				return nil, fmt.Errorf("dataset %q lists itself as fallback", d.ID)
			}
			if _, ok := r.byID[fb]; !ok {
				return nil, fmt.Errorf("dataset %q: fallback %q is not in the catalog", d.ID, fb)
			}
		}
	}

	return r, nil
}

// catalogFile mirrors the YAML layout of the dataset catalog.
type catalogFile struct {
	Datasets []models.DatasetDescriptor `koanf:"datasets"`
}

// Load reads the dataset catalog from a YAML file.
func Load(path string) (*Registry, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load dataset catalog: %w", err)
	}

	var cf catalogFile
	if err := k.Unmarshal("", &cf); err != nil {
		return nil, fmt.Errorf("parse dataset catalog: %w", err)
	}
	if len(cf.Datasets) == 0 {
		return nil, fmt.Errorf("dataset catalog %s declares no datasets", path)
	}

	return New(cf.Datasets)
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (*models.DatasetDescriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, id)
	}
	return d, nil
}

// Has reports whether id is cataloged.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// All returns the descriptors in catalog order.
func (r *Registry) All() []models.DatasetDescriptor {
	out := make([]models.DatasetDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// Len returns the number of cataloged datasets.
func (r *Registry) Len() int {
	return len(r.order)
}

// FallbackOrder returns the dataset's fallback chain ordered for the
// requested date. Descriptors list the current-era variant first; for
// dates before the dataset's split year the order is reversed so the
// historical variant is tried first. A zero date uses the declared
// order unchanged.
func (r *Registry) FallbackOrder(d *models.DatasetDescriptor, date time.Time) []string {
	if len(d.FallbackDatasets) == 0 {
		return nil
	}

	out := make([]string, len(d.FallbackDatasets))
	copy(out, d.FallbackDatasets)

	if d.FallbackSplitYear > 0 && !date.IsZero() && date.Year() < d.FallbackSplitYear {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
