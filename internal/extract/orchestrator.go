// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package extract implements point-data extraction with caching and
// dataset fallback.
//
// Extract serves a single (dataset, lat, lon, date) request. The point
// cache is consulted first; on a miss, concurrent identical requests
// collapse into one file extraction. When the requested dataset has no
// usable file, its fallback chain is walked in the order the catalog
// dictates for the requested date, and the result is annotated with
// what was attempted.
//
// ExtractMany fans one coordinate out across several datasets, each
// branch independently bounded by a timeout. Partial success is the
// normal case.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/oceanus/internal/catalog"
	"github.com/tomtom215/oceanus/internal/grid"
	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/metrics"
	"github.com/tomtom215/oceanus/internal/models"
	"github.com/tomtom215/oceanus/internal/pointcache"
	"github.com/tomtom215/oceanus/internal/resolver"
)

const isoDate = "2006-01-02"

// DefaultBranchTimeout bounds each dataset branch of ExtractMany.
const DefaultBranchTimeout = 5 * time.Second

// Orchestrator coordinates cache, resolver and grid pool to serve
// point extractions.
type Orchestrator struct {
	registry      *catalog.Registry
	resolver      *resolver.Resolver
	pool          *grid.Pool
	cache         *pointcache.Cache
	branchTimeout time.Duration
}

// New creates an Orchestrator. A non-positive branchTimeout selects
// DefaultBranchTimeout.
func New(reg *catalog.Registry, res *resolver.Resolver, pool *grid.Pool, cache *pointcache.Cache, branchTimeout time.Duration) *Orchestrator {
	if branchTimeout <= 0 {
		branchTimeout = DefaultBranchTimeout
	}
	return &Orchestrator{
		registry:      reg,
		resolver:      res,
		pool:          pool,
		cache:         cache,
		branchTimeout: branchTimeout,
	}
}

// Catalog returns the dataset descriptors in catalog order.
func (o *Orchestrator) Catalog() []models.DatasetDescriptor {
	return o.registry.All()
}

// AvailableDates returns the valid data dates a dataset holds, in
// ascending order.
func (o *Orchestrator) AvailableDates(datasetID string) ([]time.Time, error) {
	ds, err := o.registry.Get(datasetID)
	if err != nil {
		return nil, err
	}
	return o.resolver.AvailableDates(ds)
}

// Extract serves one point extraction. dateStr is an ISO date or empty
// for the latest available data. Extraction paths that find no data
// return a populated no-data result, not an error; errors are reserved
// for malformed requests and unknown datasets.
func (o *Orchestrator) Extract(ctx context.Context, datasetID string, lat, lon float64, dateStr string) (models.PointResult, error) {
	if err := checkCoordinate(lat, lon); err != nil {
		return models.PointResult{}, err
	}
	ds, err := o.registry.Get(datasetID)
	if err != nil {
		return models.PointResult{}, err
	}

	var date time.Time
	hasDate := dateStr != ""
	if hasDate {
		date, err = time.Parse(isoDate, dateStr)
		if err != nil {
			return models.PointResult{}, fmt.Errorf("%w: %q", ErrInvalidDate, dateStr)
		}
	}

	start := time.Now()
	key := pointcache.NewKey(datasetID, lat, lon, dateStr)
	entry, cached, err := o.cache.Do(key, 0, func() (*pointcache.Entry, error) {
		return o.extractFresh(ctx, ds, lat, lon, date, hasDate)
	})
	if err != nil {
		return models.PointResult{}, err
	}

	res := resultFromEntry(datasetID, lat, lon, entry)
	res.ExtractionMs = float64(time.Since(start).Microseconds()) / 1000
	if cached {
		res.Source = models.SourceCache
	}
	metrics.ObserveExtraction(datasetID, sourceLabel(res.Source), time.Since(start))
	return res, nil
}

// ExtractMany fans one coordinate out across the given datasets. Each
// branch runs under its own timeout; a failed branch lands in Errors
// and never disturbs its siblings.
func (o *Orchestrator) ExtractMany(ctx context.Context, datasetIDs []string, lat, lon float64, dateStr string) (models.BatchResult, error) {
	if err := checkCoordinate(lat, lon); err != nil {
		return models.BatchResult{}, err
	}
	if dateStr != "" {
		if _, err := time.Parse(isoDate, dateStr); err != nil {
			return models.BatchResult{}, fmt.Errorf("%w: %q", ErrInvalidDate, dateStr)
		}
	}

	start := time.Now()
	batch := models.BatchResult{
		Results: make(map[string]models.PointResult, len(datasetIDs)),
		Errors:  make(map[string]models.BranchError),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range datasetIDs {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, o.branchTimeout)
			defer cancel()

			res, err := o.extractBranch(bctx, id, lat, lon, dateStr)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Errors[id] = branchError(err)
				metrics.ExtractionErrors.WithLabelValues(id, batch.Errors[id].Kind).Inc()
				return nil // branch failures never cancel siblings
			}
			batch.Results[id] = res
			return nil
		})
	}
	_ = g.Wait()

	if len(batch.Errors) == 0 {
		batch.Errors = nil
	}
	batch.TotalExtractionMs = float64(time.Since(start).Microseconds()) / 1000
	return batch, nil
}

// extractBranch runs Extract but converts a branch deadline into an
// error instead of letting a half-finished result escape.
func (o *Orchestrator) extractBranch(ctx context.Context, datasetID string, lat, lon float64, dateStr string) (models.PointResult, error) {
	type outcome struct {
		res models.PointResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := o.Extract(ctx, datasetID, lat, lon, dateStr)
		ch <- outcome{r, err}
	}()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return models.PointResult{}, ctx.Err()
	}
}

// extractFresh performs a cache-miss extraction, walking the fallback
// chain when the requested dataset has no usable file.
func (o *Orchestrator) extractFresh(ctx context.Context, ds *models.DatasetDescriptor, lat, lon float64, date time.Time, hasDate bool) (*pointcache.Entry, error) {
	entry, err := o.extractFromDataset(ctx, ds, lat, lon, date, hasDate)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, resolver.ErrNoFile) {
		return nil, err
	}

	// Primary has no usable file. Walk the fallback chain in the order
	// the catalog dictates for this date.
	var fb models.FallbackInfo
	fb.Requested = ds.ID
	for _, fbID := range o.registry.FallbackOrder(ds, date) {
		fbDS, gerr := o.registry.Get(fbID)
		if gerr != nil {
			continue // catalog validation makes this unreachable
		}
		fb.Attempted = append(fb.Attempted, fbID)

		fbEntry, ferr := o.extractFromDataset(ctx, fbDS, lat, lon, date, hasDate)
		if ferr != nil {
			if errors.Is(ferr, resolver.ErrNoFile) {
				metrics.FallbackAttempts.WithLabelValues(ds.ID, fbID, "no_file").Inc()
				continue
			}
			return nil, ferr
		}
		metrics.FallbackAttempts.WithLabelValues(ds.ID, fbID, "success").Inc()
		fb.Used = fbID
		fbEntry.Fallback = &fb
		logging.Debug().Str("dataset", ds.ID).Str("fallback", fbID).Msg("served through fallback dataset")
		return fbEntry, nil
	}

	// Nothing anywhere. A well-formed empty entry is still cached so
	// repeated probes of a missing dataset stay cheap.
	empty := &pointcache.Entry{
		Values:      map[string]models.DataValue{},
		MatchedDate: models.DateNoData,
		Source:      models.SourceNoData,
	}
	if len(fb.Attempted) > 0 {
		empty.Fallback = &fb
	}
	return empty, nil
}

// extractFromDataset resolves the dataset's file for the date and reads
// every catalog variable at the nearest grid cell or sample.
func (o *Orchestrator) extractFromDataset(ctx context.Context, ds *models.DatasetDescriptor, lat, lon float64, date time.Time, hasDate bool) (*pointcache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cand resolver.Candidate
	var err error
	if hasDate {
		cand, err = o.resolver.Resolve(ds, date)
	} else {
		cand, err = o.resolver.ResolveLatest(ds)
	}
	if err != nil {
		return nil, err
	}

	h, err := o.pool.Acquire(cand.Path)
	if err != nil {
		// The file passed validation but failed to parse; treat it as
		// unusable so the fallback chain gets its chance.
		logging.Warn().Err(err).Str("dataset", ds.ID).Str("path", cand.Path).Msg("validated file failed to open")
		return nil, fmt.Errorf("dataset %s: %w", ds.ID, resolver.ErrNoFile)
	}
	defer h.Release()

	match, ok := h.Grid.FindNearestWithin(lat, lon, ds.MatchCutoff())
	if !ok {
		// Nearest sample is beyond the match cutoff; report no data at
		// this point without consulting fallbacks.
		return &pointcache.Entry{
			Values:      map[string]models.DataValue{},
			MatchedDate: models.DateNoData,
			Source:      models.SourceNoData,
		}, nil
	}

	values := make(map[string]models.DataValue, len(ds.Variables))
	for _, name := range ds.Variables {
		v, present := h.File.Variable(name)
		if !present {
			values[name] = models.DataValue{Valid: false}
			continue
		}
		dv := models.DataValue{Units: v.Units, LongName: v.LongName}
		if val, ok := h.File.ValueAt(name, match.LatIdx, match.LonIdx); ok {
			dv.Value = &val
			dv.Valid = true
		}
		values[name] = dv
	}

	return &pointcache.Entry{
		Values:      values,
		Actual:      &models.Location{Lat: match.Lat, Lon: match.Lon},
		MatchedDate: cand.Date.Format(isoDate),
		Source:      cand.Path,
	}, nil
}

func resultFromEntry(datasetID string, lat, lon float64, e *pointcache.Entry) models.PointResult {
	res := models.PointResult{
		Dataset:           datasetID,
		RequestedLocation: models.Location{Lat: lat, Lon: lon},
		ActualLocation:    e.Actual,
		Date:              e.MatchedDate,
		Values:            e.Values,
		Source:            e.Source,
		Fallback:          e.Fallback,
	}
	if res.Values == nil {
		res.Values = map[string]models.DataValue{}
	}
	return res
}

func checkCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %g outside [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %g outside [-180, 180]", ErrInvalidCoordinate, lon)
	}
	return nil
}

func branchError(err error) models.BranchError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.BranchError{Kind: KindTimeout, Message: "extraction exceeded branch timeout"}
	case errors.Is(err, context.Canceled):
		return models.BranchError{Kind: KindCancelled, Message: "extraction cancelled"}
	case errors.Is(err, catalog.ErrUnknownDataset):
		return models.BranchError{Kind: KindUnknownDataset, Message: err.Error()}
	default:
		return models.BranchError{Kind: KindInternal, Message: err.Error()}
	}
}

func sourceLabel(source string) string {
	switch source {
	case models.SourceCache:
		return "cache"
	case models.SourceNoData:
		return "no-data"
	default:
		return "file"
	}
}
