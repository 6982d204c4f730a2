// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package recovery detects and repairs holes in the on-disk data
// holdings: date gaps are refetched from each dataset's upstream, raw
// files missing their processed counterpart are reprocessed, corrupted
// files are quarantined and refetched, and old quarantined files are
// cleaned up.
//
// Scan emits tasks; Execute drains them under a bounded worker pool
// with per-attempt deadlines, exponential retry backoff and a global
// download rate limit. Every task ends completed or failed, and every
// state change is persisted to the BadgerDB ledger.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/oceanus/internal/catalog"
	"github.com/tomtom215/oceanus/internal/integrity"
	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/metrics"
	"github.com/tomtom215/oceanus/internal/models"
	"github.com/tomtom215/oceanus/internal/resolver"
)

const (
	isoDate     = "2006-01-02"
	dayLayout   = "20060102"
	oneDay      = 24 * time.Hour
	quarantine  = ".quarantined"
	downloadExt = ".download"
)

// Reprocessor rebuilds a processed data file from its raw counterpart.
// Implementations write the result to destPath; the scheduler owns
// validation and atomic placement.
type Reprocessor interface {
	Reprocess(ctx context.Context, ds *models.DatasetDescriptor, rawPath, destPath string) error
}

// Config tunes the scheduler.
type Config struct {
	// MaxAttempts bounds attempts per task.
	MaxAttempts int

	// Workers bounds concurrent task execution.
	Workers int

	// AttemptTimeout bounds one attempt.
	AttemptTimeout time.Duration

	// DownloadsPerMinute throttles downloader calls across all workers.
	DownloadsPerMinute int

	// BackoffCap bounds the exponential retry delay.
	BackoffCap time.Duration

	// RetryInitialInterval is the first retry delay; doubles per retry.
	RetryInitialInterval time.Duration

	// QuarantineRetention is how long quarantined files are kept before
	// a cleanup task removes them.
	QuarantineRetention time.Duration

	// MaxGapTasksPerDataset bounds refetch tasks emitted per dataset
	// per scan, newest gaps first.
	MaxGapTasksPerDataset int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 2 * time.Minute
	}
	if c.DownloadsPerMinute <= 0 {
		c.DownloadsPerMinute = 30
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = time.Second
	}
	if c.QuarantineRetention <= 0 {
		c.QuarantineRetention = 7 * oneDay
	}
	if c.MaxGapTasksPerDataset <= 0 {
		c.MaxGapTasksPerDataset = 60
	}
	return c
}

// Scheduler scans dataset holdings for repairable defects and executes
// the resulting tasks.
type Scheduler struct {
	registry    *catalog.Registry
	resolver    *resolver.Resolver
	validator   *integrity.Validator
	ledger      *Ledger
	downloader  Downloader
	reprocessor Reprocessor
	limiter     *rate.Limiter
	cfg         Config

	// OnRepaired, when set, is called after a file is repaired in
	// place so derived state (grid pool, point cache) can be dropped.
	OnRepaired func(datasetID, path string)

	// now is injected by tests to pin the scan horizon.
	now func() time.Time
}

// New creates a Scheduler. reprocessor may be nil when no raw-file
// pipeline exists; reprocess tasks are then never emitted.
func New(reg *catalog.Registry, res *resolver.Resolver, v *integrity.Validator, ledger *Ledger, dl Downloader, rp Reprocessor, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		registry:    reg,
		resolver:    res,
		validator:   v,
		ledger:      ledger,
		downloader:  dl,
		reprocessor: rp,
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.DownloadsPerMinute)/60.0), 1),
		cfg:         cfg,
		now:         time.Now,
	}
}

// Scan walks every dataset and emits one task per repairable defect:
// corrupted files are quarantined and refetched, date gaps between the
// earliest holding and yesterday are refetched, raw files without a
// processed counterpart are reprocessed, and expired quarantined files
// are removed. Emitted tasks are persisted before Scan returns.
func (s *Scheduler) Scan(ctx context.Context) ([]models.RecoveryTask, error) {
	var tasks []models.RecoveryTask
	yesterday := s.today().Add(-oneDay)

	for _, ds := range s.registry.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dsTasks, err := s.scanDataset(&ds, yesterday)
		if err != nil {
			logging.Warn().Err(err).Str("dataset", ds.ID).Msg("dataset scan failed, skipping")
			continue
		}
		tasks = append(tasks, dsTasks...)
	}

	for i := range tasks {
		if err := s.ledger.SaveTask(&tasks[i]); err != nil {
			return nil, fmt.Errorf("persist task %s: %w", tasks[i].ID, err)
		}
	}
	metrics.RecoveryQueueDepth.Set(float64(len(tasks)))
	logging.Info().Int("tasks", len(tasks)).Msg("recovery scan complete")
	return tasks, nil
}

func (s *Scheduler) scanDataset(ds *models.DatasetDescriptor, yesterday time.Time) ([]models.RecoveryTask, error) {
	cands, err := s.resolver.Candidates(ds)
	if err != nil {
		return nil, err
	}

	var tasks []models.RecoveryTask
	valid := make(map[string]bool, len(cands))
	var earliest time.Time

	for _, c := range cands {
		if s.resolver.IsValid(ds, c) {
			valid[c.Date.Format(dayLayout)] = true
			if earliest.IsZero() || c.Date.Before(earliest) {
				earliest = c.Date
			}
			continue
		}

		// Corrupted file: move it aside so resolution stops paying to
		// re-validate it, then refetch the date.
		qpath := c.Path + quarantine
		if err := os.Rename(c.Path, qpath); err != nil {
			logging.Warn().Err(err).Str("path", c.Path).Msg("failed to quarantine corrupted file")
			continue
		}
		s.resolver.Invalidate(c.Path)
		logging.Warn().Str("dataset", ds.ID).Str("path", c.Path).Msg("corrupted file quarantined")
		if ds.SourceURL != "" {
			tasks = append(tasks, s.newTask(models.TaskRefetch, ds.ID, c.Path, c.Date))
		}
	}

	// Date gaps, newest first. A dataset with no valid holdings has no
	// baseline to extend from.
	if !earliest.IsZero() && ds.SourceURL != "" {
		lower, upper := coverageBounds(ds, earliest, yesterday)
		gaps := 0
		for day := upper; !day.Before(lower) && gaps < s.cfg.MaxGapTasksPerDataset; day = day.Add(-oneDay) {
			if valid[day.Format(dayLayout)] {
				continue
			}
			tasks = append(tasks, s.newTask(models.TaskRefetch, ds.ID, s.resolver.FilePathFor(ds, day), day))
			gaps++
		}
	}

	// Raw files whose processed counterpart is missing.
	if s.reprocessor != nil {
		raws, err := s.rawFiles(ds)
		if err != nil {
			return nil, err
		}
		for _, r := range raws {
			if valid[r.Date.Format(dayLayout)] {
				continue
			}
			tasks = append(tasks, s.newTask(models.TaskReprocess, ds.ID, r.Path, r.Date))
		}
	}

	// Quarantined files past retention.
	expired, err := s.expiredQuarantine(ds)
	if err != nil {
		return nil, err
	}
	for _, path := range expired {
		t := s.newTask(models.TaskCleanup, ds.ID, path, time.Time{})
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// Execute drains tasks under the worker pool and reports the outcome.
// Every task ends completed or failed; the report is persisted as the
// last run.
func (s *Scheduler) Execute(ctx context.Context, tasks []models.RecoveryTask) *models.RecoveryReport {
	report := &models.RecoveryReport{
		StartedAt: s.now().UTC(),
		Datasets:  make(map[string]models.DatasetRecoveryStats),
	}

	queue := make(chan *models.RecoveryTask)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range s.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				s.runTask(ctx, task)
				mu.Lock()
				recordOutcome(report, task)
				metrics.RecoveryQueueDepth.Dec()
				mu.Unlock()
			}
		}()
	}
	for i := range tasks {
		queue <- &tasks[i]
	}
	close(queue)
	wg.Wait()

	report.FinishedAt = s.now().UTC()
	if err := s.ledger.SaveReport(report); err != nil {
		logging.Error().Err(err).Msg("failed to persist recovery report")
	}
	logging.Info().Int("completed", report.Completed).Int("failed", report.Failed).Msg("recovery run finished")
	return report
}

// Run is Scan followed by Execute.
func (s *Scheduler) Run(ctx context.Context) (*models.RecoveryReport, error) {
	tasks, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, tasks), nil
}

// LastReport returns the persisted report of the most recent run, or
// nil when none exists.
func (s *Scheduler) LastReport() (*models.RecoveryReport, error) {
	return s.ledger.LastReport()
}

// newRetryBackoff builds the doubling retry schedule, jitter-free so
// delays are exactly initial, 2*initial, 4*initial up to the cap.
func newRetryBackoff(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// runTask drives one task to a terminal state, retrying with doubling
// backoff up to MaxAttempts.
func (s *Scheduler) runTask(ctx context.Context, task *models.RecoveryTask) {
	bo := newRetryBackoff(s.cfg.RetryInitialInterval, s.cfg.BackoffCap)

	for {
		task.Attempts++
		task.State = models.TaskAttempting
		task.LastAttemptAt = s.now().UTC()
		s.saveTask(task)

		actx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		err := s.attempt(actx, task)
		cancel()

		if err == nil {
			task.State = models.TaskCompleted
			metrics.RecoveryAttempts.WithLabelValues(task.Dataset, "success").Inc()
			break
		}
		task.Errors = append(task.Errors, err.Error())
		metrics.RecoveryAttempts.WithLabelValues(task.Dataset, "failure").Inc()
		logging.Warn().Err(err).Str("task", task.ID).Str("kind", string(task.Kind)).Int("attempt", task.Attempts).Msg("recovery attempt failed")

		if task.Attempts >= task.MaxAttempts || ctx.Err() != nil || errors.Is(err, ErrNoSource) {
			task.State = models.TaskFailed
			break
		}

		task.State = models.TaskRetrying
		s.saveTask(task)
		select {
		case <-ctx.Done():
			task.Errors = append(task.Errors, ctx.Err().Error())
			task.State = models.TaskFailed
		case <-time.After(bo.NextBackOff()):
			continue
		}
		break
	}

	s.saveTask(task)
	metrics.RecoveryTasks.WithLabelValues(task.Dataset, string(task.Kind), string(task.State)).Inc()
}

func (s *Scheduler) attempt(ctx context.Context, task *models.RecoveryTask) error {
	switch task.Kind {
	case models.TaskRefetch:
		return s.attemptRefetch(ctx, task)
	case models.TaskReprocess:
		return s.attemptReprocess(ctx, task)
	case models.TaskCleanup:
		return s.attemptCleanup(task)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func (s *Scheduler) attemptRefetch(ctx context.Context, task *models.RecoveryTask) error {
	ds, err := s.registry.Get(task.Dataset)
	if err != nil {
		return err
	}
	date, err := time.Parse(isoDate, task.Date)
	if err != nil {
		return fmt.Errorf("task date %q: %w", task.Date, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	tmp := task.FilePath + downloadExt
	if err := s.downloader.Fetch(ctx, ds, date, tmp); err != nil {
		return err
	}
	defer os.Remove(tmp)

	if res := s.validator.ValidateGridFile(tmp, ds, date); !res.OK {
		return fmt.Errorf("downloaded file failed validation: %s", strings.Join(res.Errors, "; "))
	}
	if err := os.Rename(tmp, task.FilePath); err != nil {
		return fmt.Errorf("place downloaded file: %w", err)
	}
	s.repaired(task.Dataset, task.FilePath)
	return nil
}

func (s *Scheduler) attemptReprocess(ctx context.Context, task *models.RecoveryTask) error {
	ds, err := s.registry.Get(task.Dataset)
	if err != nil {
		return err
	}
	date, err := time.Parse(isoDate, task.Date)
	if err != nil {
		return fmt.Errorf("task date %q: %w", task.Date, err)
	}

	dest := s.resolver.FilePathFor(ds, date)
	tmp := dest + downloadExt
	if err := s.reprocessor.Reprocess(ctx, ds, task.FilePath, tmp); err != nil {
		return err
	}
	defer os.Remove(tmp)

	if res := s.validator.ValidateGridFile(tmp, ds, date); !res.OK {
		return fmt.Errorf("reprocessed file failed validation: %s", strings.Join(res.Errors, "; "))
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("place reprocessed file: %w", err)
	}
	s.repaired(task.Dataset, dest)
	return nil
}

func (s *Scheduler) attemptCleanup(task *models.RecoveryTask) error {
	err := os.Remove(task.FilePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove quarantined file: %w", err)
	}
	return nil
}

func (s *Scheduler) repaired(datasetID, path string) {
	s.resolver.Invalidate(path)
	if s.OnRepaired != nil {
		s.OnRepaired(datasetID, path)
	}
	logging.Info().Str("dataset", datasetID).Str("path", path).Msg("file repaired")
}

func (s *Scheduler) newTask(kind models.TaskKind, datasetID, filePath string, date time.Time) models.RecoveryTask {
	t := models.RecoveryTask{
		ID:          uuid.NewString(),
		Kind:        kind,
		Dataset:     datasetID,
		FilePath:    filePath,
		State:       models.TaskCreated,
		MaxAttempts: s.cfg.MaxAttempts,
		CreatedAt:   s.now().UTC(),
	}
	if !date.IsZero() {
		t.Date = date.Format(isoDate)
	}
	return t
}

func (s *Scheduler) saveTask(task *models.RecoveryTask) {
	if err := s.ledger.SaveTask(task); err != nil {
		logging.Error().Err(err).Str("task", task.ID).Msg("failed to persist task state")
	}
}

type rawFile struct {
	Path string
	Date time.Time
}

// rawFiles lists the dated raw files under <dataset dir>/raw.
func (s *Scheduler) rawFiles(ds *models.DatasetDescriptor) ([]rawFile, error) {
	dir := s.resolver.DatasetDir(ds.ID) + string(os.PathSeparator) + "raw"
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []rawFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".raw") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".raw")
		date, ok := parseDatedName(ds, base)
		if !ok {
			continue
		}
		out = append(out, rawFile{Path: dir + string(os.PathSeparator) + e.Name(), Date: date})
	}
	return out, nil
}

func (s *Scheduler) expiredQuarantine(ds *models.DatasetDescriptor) ([]string, error) {
	dir := s.resolver.DatasetDir(ds.ID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	cutoff := s.now().Add(-s.cfg.QuarantineRetention)
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), quarantine) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			out = append(out, dir+string(os.PathSeparator)+e.Name())
		}
	}
	return out, nil
}

// parseDatedName extracts the date from a file name matching the
// dataset's pattern.
func parseDatedName(ds *models.DatasetDescriptor, name string) (time.Time, bool) {
	i := strings.Index(ds.FilePattern, "YYYYMMDD")
	if i < 0 {
		return time.Time{}, false
	}
	prefix, suffix := ds.FilePattern[:i], ds.FilePattern[i+len("YYYYMMDD"):]
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	mid := name[len(prefix) : len(name)-len(suffix)]
	t, err := time.Parse(dayLayout, mid)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func coverageBounds(ds *models.DatasetDescriptor, earliest, yesterday time.Time) (time.Time, time.Time) {
	lower, upper := earliest, yesterday
	if ds.Coverage != nil {
		if ds.Coverage.Start != "" {
			if t, err := time.Parse(isoDate, ds.Coverage.Start); err == nil && t.After(lower) {
				lower = t
			}
		}
		if ds.Coverage.End != "" {
			if t, err := time.Parse(isoDate, ds.Coverage.End); err == nil && t.Before(upper) {
				upper = t
			}
		}
	}
	return lower, upper
}

func recordOutcome(report *models.RecoveryReport, task *models.RecoveryTask) {
	report.Tasks = append(report.Tasks, models.TaskOutcome{
		ID:       task.ID,
		Kind:     task.Kind,
		Dataset:  task.Dataset,
		Date:     task.Date,
		State:    task.State,
		Attempts: task.Attempts,
		Errors:   task.Errors,
	})

	stats := report.Datasets[task.Dataset]
	if task.State == models.TaskCompleted {
		report.Completed++
		switch task.Kind {
		case models.TaskRefetch:
			stats.Recovered++
		case models.TaskReprocess:
			stats.Reprocessed++
		case models.TaskCleanup:
			stats.Cleaned++
		}
	} else {
		report.Failed++
		stats.Failed++
	}
	report.Datasets[task.Dataset] = stats
}

// today returns midnight UTC of the current day.
func (s *Scheduler) today() time.Time {
	return s.now().UTC().Truncate(oneDay)
}
