// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package resolver locates the on-disk data file that serves a dataset
// and date. Each dataset owns one directory under the data root, named
// by dataset ID, holding dated files that match the dataset's file
// pattern. Resolution prefers an exact date match, then the nearest
// dated file, skipping files that fail integrity validation.
//
// Validation verdicts are memoized per file identity (path, mtime,
// size) so repeated resolutions do not re-read unchanged files. A
// fsnotify watcher drops memoized verdicts when files change on disk.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/oceanus/internal/integrity"
	"github.com/tomtom215/oceanus/internal/metrics"
	"github.com/tomtom215/oceanus/internal/models"
)

// ErrNoFile indicates no usable data file exists for the requested
// dataset, either because the directory is empty or because every
// candidate failed validation.
var ErrNoFile = errors.New("no usable data file")

// datePlaceholder is the token in a dataset's file pattern that marks
// the calendar date position.
const datePlaceholder = "YYYYMMDD"

const dateLayout = "20060102"

// Candidate is one dated file found in a dataset directory.
type Candidate struct {
	Path string
	Date time.Time
}

type memoKey struct {
	path  string
	mtime int64
	size  int64
}

// Resolver maps dataset and date to a validated file path.
type Resolver struct {
	root      string
	validator *integrity.Validator

	mu   sync.RWMutex
	memo map[string]memoEntry // path -> last verdict
}

type memoEntry struct {
	key memoKey
	ok  bool
}

// New creates a Resolver over the given data root.
func New(root string, v *integrity.Validator) *Resolver {
	return &Resolver{
		root:      root,
		validator: v,
		memo:      make(map[string]memoEntry),
	}
}

// DatasetDir returns the directory holding a dataset's files.
func (r *Resolver) DatasetDir(datasetID string) string {
	return filepath.Join(r.root, datasetID)
}

// Resolve returns the best file for the dataset on the given date. An
// exact date match wins; otherwise the valid file with the smallest
// date distance is chosen, preferring the more recent file on ties.
// Invalid files are skipped, never returned.
func (r *Resolver) Resolve(ds *models.DatasetDescriptor, date time.Time) (Candidate, error) {
	cands, err := r.scan(ds)
	if err != nil {
		return Candidate{}, err
	}
	if len(cands) == 0 {
		metrics.ResolverNoFile.WithLabelValues(ds.ID).Inc()
		return Candidate{}, fmt.Errorf("dataset %s: %w", ds.ID, ErrNoFile)
	}

	day := date.UTC().Truncate(24 * time.Hour)
	sort.Slice(cands, func(i, j int) bool {
		di, dj := dateDistance(cands[i].Date, day), dateDistance(cands[j].Date, day)
		if di != dj {
			return di < dj
		}
		return cands[i].Date.After(cands[j].Date)
	})

	for _, c := range cands {
		if r.isValid(ds, c) {
			return c, nil
		}
	}
	metrics.ResolverNoFile.WithLabelValues(ds.ID).Inc()
	return Candidate{}, fmt.Errorf("dataset %s: all %d candidate files invalid: %w", ds.ID, len(cands), ErrNoFile)
}

// ResolveLatest returns the most recent valid file for the dataset.
func (r *Resolver) ResolveLatest(ds *models.DatasetDescriptor) (Candidate, error) {
	cands, err := r.scan(ds)
	if err != nil {
		return Candidate{}, err
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Date.After(cands[j].Date) })

	for _, c := range cands {
		if r.isValid(ds, c) {
			return c, nil
		}
	}
	metrics.ResolverNoFile.WithLabelValues(ds.ID).Inc()
	return Candidate{}, fmt.Errorf("dataset %s: %w", ds.ID, ErrNoFile)
}

// AvailableDates returns the dates of this dataset's valid files in
// ascending order. Fallback datasets are not consulted; each dataset
// reports only its own holdings.
func (r *Resolver) AvailableDates(ds *models.DatasetDescriptor) ([]time.Time, error) {
	cands, err := r.scan(ds)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(cands))
	for _, c := range cands {
		if r.isValid(ds, c) {
			dates = append(dates, c.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Candidates returns every dated file in the dataset directory,
// validity unchecked, in ascending date order. Recovery scans use this
// to see broken files that Resolve would skip.
func (r *Resolver) Candidates(ds *models.DatasetDescriptor) ([]Candidate, error) {
	cands, err := r.scan(ds)
	if err != nil {
		return nil, err
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Date.Before(cands[j].Date) })
	return cands, nil
}

// IsValid reports whether the candidate passes integrity validation,
// consulting the memoized verdict when the file is unchanged.
func (r *Resolver) IsValid(ds *models.DatasetDescriptor, c Candidate) bool {
	return r.isValid(ds, c)
}

// Invalidate drops the memoized verdict for a path. Called when the
// file changes on disk.
func (r *Resolver) Invalidate(path string) {
	r.mu.Lock()
	delete(r.memo, path)
	r.mu.Unlock()
}

// InvalidateDataset drops every memoized verdict under the dataset's
// directory.
func (r *Resolver) InvalidateDataset(datasetID string) {
	prefix := r.DatasetDir(datasetID) + string(os.PathSeparator)
	r.mu.Lock()
	for p := range r.memo {
		if strings.HasPrefix(p, prefix) {
			delete(r.memo, p)
		}
	}
	r.mu.Unlock()
}

// scan lists the dated files in the dataset directory. A missing
// directory is an empty dataset, not an error.
func (r *Resolver) scan(ds *models.DatasetDescriptor) ([]Candidate, error) {
	start := time.Now()
	defer func() {
		metrics.ResolverScanDuration.WithLabelValues(ds.ID).Observe(time.Since(start).Seconds())
	}()

	dir := r.DatasetDir(ds.ID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan dataset %s: %w", ds.ID, err)
	}

	prefix, suffix, ok := splitPattern(ds.FilePattern)
	if !ok {
		return nil, fmt.Errorf("dataset %s: file pattern %q lacks %s placeholder", ds.ID, ds.FilePattern, datePlaceholder)
	}

	var cands []Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := parseDated(e.Name(), prefix, suffix)
		if !ok {
			continue
		}
		cands = append(cands, Candidate{Path: filepath.Join(dir, e.Name()), Date: date})
	}
	return cands, nil
}

func (r *Resolver) isValid(ds *models.DatasetDescriptor, c Candidate) bool {
	fi, err := os.Stat(c.Path)
	if err != nil {
		return false
	}
	key := memoKey{path: c.Path, mtime: fi.ModTime().UnixNano(), size: fi.Size()}

	r.mu.RLock()
	m, hit := r.memo[c.Path]
	r.mu.RUnlock()
	if hit && m.key == key {
		return m.ok
	}

	res := r.validator.ValidateGridFile(c.Path, ds, c.Date)

	r.mu.Lock()
	r.memo[c.Path] = memoEntry{key: key, ok: res.OK}
	r.mu.Unlock()
	return res.OK
}

// splitPattern separates the file pattern around the date placeholder.
func splitPattern(pattern string) (prefix, suffix string, ok bool) {
	i := strings.Index(pattern, datePlaceholder)
	if i < 0 {
		return "", "", false
	}
	return pattern[:i], pattern[i+len(datePlaceholder):], true
}

// parseDated extracts the date from a file name shaped prefix+date+suffix.
func parseDated(name, prefix, suffix string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	mid := name[len(prefix) : len(name)-len(suffix)]
	if len(mid) != len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, mid)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FileName renders the dataset's file name for a date.
func FileName(ds *models.DatasetDescriptor, date time.Time) string {
	return strings.Replace(ds.FilePattern, datePlaceholder, date.UTC().Format(dateLayout), 1)
}

// FilePathFor renders the full path a dataset file would have on a
// date, whether or not it exists.
func (r *Resolver) FilePathFor(ds *models.DatasetDescriptor, date time.Time) string {
	return filepath.Join(r.DatasetDir(ds.ID), FileName(ds, date))
}

func dateDistance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
