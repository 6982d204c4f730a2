// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/oceanus/internal/catalog"
	"github.com/tomtom215/oceanus/internal/grid"
	"github.com/tomtom215/oceanus/internal/integrity"
	"github.com/tomtom215/oceanus/internal/models"
	"github.com/tomtom215/oceanus/internal/resolver"
)

// fakeDownloader writes a valid grid file after a configurable number
// of failures.
type fakeDownloader struct {
	failures int32 // remaining failures
	calls    int32
}

func (d *fakeDownloader) Fetch(_ context.Context, ds *models.DatasetDescriptor, date time.Time, destPath string) error {
	atomic.AddInt32(&d.calls, 1)
	if atomic.AddInt32(&d.failures, -1) >= 0 {
		return errors.New("upstream unavailable")
	}
	return writeGrid(destPath, date)
}

type fakeReprocessor struct{ calls int32 }

func (r *fakeReprocessor) Reprocess(_ context.Context, ds *models.DatasetDescriptor, rawPath, destPath string) error {
	atomic.AddInt32(&r.calls, 1)
	if _, err := os.Stat(rawPath); err != nil {
		return err
	}
	// Date comes from the destination name in this fake.
	base := filepath.Base(destPath)
	date, err := time.Parse("20060102", base[len("sst_"):len("sst_")+8])
	if err != nil {
		return err
	}
	return writeGrid(destPath, date)
}

func writeGrid(path string, date time.Time) error {
	b := grid.Builder{
		Timestamp: date,
		Lats:      []float64{40, 41},
		Lons:      []float64{-70, -69},
	}
	b.AddVariable("sst", "degC", "sea surface temperature", -9999, []float32{12, 13, 14, 15})
	return b.WriteFile(path)
}

func testRegistry(t *testing.T, sourceURL string) *catalog.Registry {
	t.Helper()
	reg, err := catalog.New([]models.DatasetDescriptor{{
		ID:          "sst",
		Name:        "Sea Surface Temperature",
		Variables:   []string{"sst"},
		FilePattern: "sst_YYYYMMDD.ogf",
		SourceURL:   sourceURL,
	}})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

type fixture struct {
	sched *Scheduler
	root  string
	res   *resolver.Resolver
	dl    *fakeDownloader
	now   time.Time
}

func newFixture(t *testing.T, sourceURL string, dl *fakeDownloader, rp Reprocessor) *fixture {
	t.Helper()
	root := t.TempDir()
	reg := testRegistry(t, sourceURL)
	res := resolver.New(root, integrity.New(integrity.Config{}))
	ledger, err := OpenLedger("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	sched := New(reg, res, integrity.New(integrity.Config{}), ledger, dl, rp, Config{
		MaxAttempts:          3,
		Workers:              2,
		AttemptTimeout:       5 * time.Second,
		DownloadsPerMinute:   6000,
		RetryInitialInterval: time.Millisecond,
	})
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return now }
	return &fixture{sched: sched, root: root, res: res, dl: dl, now: now}
}

func (f *fixture) writeValid(t *testing.T, date time.Time) string {
	t.Helper()
	dir := filepath.Join(f.root, "sst")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, fmt.Sprintf("sst_%s.ogf", date.Format("20060102")))
	if err := writeGrid(path, date); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) writeCorrupt(t *testing.T, date time.Time) string {
	t.Helper()
	dir := filepath.Join(f.root, "sst")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, fmt.Sprintf("sst_%s.ogf", date.Format("20060102")))
	body := make([]byte, 128)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScan_EmitsOneTaskPerDateGap(t *testing.T) {
	f := newFixture(t, "http://example.com/sst/YYYYMMDD", &fakeDownloader{}, nil)
	// Holdings: June 5 and June 9; now is June 10, so the horizon is
	// June 9 and the gaps are June 6, 7, 8.
	f.writeValid(t, utcDay(2024, 6, 5))
	f.writeValid(t, utcDay(2024, 6, 9))

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 gap tasks, got %d: %+v", len(tasks), tasks)
	}
	dates := map[string]bool{}
	for _, task := range tasks {
		if task.Kind != models.TaskRefetch {
			t.Errorf("kind = %s, want refetch", task.Kind)
		}
		if task.State != models.TaskCreated {
			t.Errorf("state = %s, want created", task.State)
		}
		dates[task.Date] = true
	}
	for _, want := range []string{"2024-06-06", "2024-06-07", "2024-06-08"} {
		if !dates[want] {
			t.Errorf("missing gap task for %s", want)
		}
	}
}

func TestScan_QuarantinesCorruptFile(t *testing.T) {
	f := newFixture(t, "http://example.com/sst/YYYYMMDD", &fakeDownloader{}, nil)
	f.writeValid(t, utcDay(2024, 6, 9))
	corrupt := f.writeCorrupt(t, utcDay(2024, 6, 8))

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(corrupt); !os.IsNotExist(err) {
		t.Error("corrupt file should have been moved aside")
	}
	if _, err := os.Stat(corrupt + quarantine); err != nil {
		t.Errorf("quarantined copy missing: %v", err)
	}

	var refetch *models.RecoveryTask
	for i := range tasks {
		if tasks[i].Date == "2024-06-08" {
			refetch = &tasks[i]
		}
	}
	if refetch == nil || refetch.Kind != models.TaskRefetch {
		t.Fatalf("expected refetch task for quarantined date, got %+v", tasks)
	}
}

func TestScan_NoSourceURLSkipsRefetch(t *testing.T) {
	f := newFixture(t, "", &fakeDownloader{}, nil)
	f.writeValid(t, utcDay(2024, 6, 5))
	f.writeValid(t, utcDay(2024, 6, 9))

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("datasets without an upstream must not emit refetch tasks, got %+v", tasks)
	}
}

func TestExecute_RetriesThenCompletes(t *testing.T) {
	dl := &fakeDownloader{failures: 2}
	f := newFixture(t, "http://example.com/sst/YYYYMMDD", dl, nil)
	// Holdings: June 6, 8, 9. June 7 is the single gap.
	f.writeValid(t, utcDay(2024, 6, 6))
	f.writeValid(t, utcDay(2024, 6, 8))
	f.writeValid(t, utcDay(2024, 6, 9))

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}

	report := f.sched.Execute(context.Background(), tasks)
	if report.Completed != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	out := report.Tasks[0]
	if out.State != models.TaskCompleted {
		t.Errorf("state = %s, want completed", out.State)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3 (two failures then success)", out.Attempts)
	}
	if len(out.Errors) != 2 {
		t.Errorf("errors = %v, want 2 recorded failures", out.Errors)
	}

	// The repaired file is on disk and valid.
	ds, _ := f.sched.registry.Get("sst")
	path := f.res.FilePathFor(ds, utcDay(2024, 6, 7))
	if !f.res.IsValid(ds, resolver.Candidate{Path: path, Date: utcDay(2024, 6, 7)}) {
		t.Error("refetched file should validate")
	}

	// Ledger holds the terminal state.
	stored, err := f.sched.ledger.Task(out.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != models.TaskCompleted {
		t.Errorf("ledger state = %s, want completed", stored.State)
	}
}

func TestExecute_ExhaustedRetriesFail(t *testing.T) {
	dl := &fakeDownloader{failures: 100}
	f := newFixture(t, "http://example.com/sst/YYYYMMDD", dl, nil)
	f.writeValid(t, utcDay(2024, 6, 7))
	f.writeValid(t, utcDay(2024, 6, 9))

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	report := f.sched.Execute(context.Background(), tasks)

	if report.Failed != 1 || report.Completed != 0 {
		t.Fatalf("report = %+v", report)
	}
	out := report.Tasks[0]
	if out.State != models.TaskFailed {
		t.Errorf("state = %s, want failed", out.State)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want max attempts", out.Attempts)
	}
	stats := report.Datasets["sst"]
	if stats.Failed != 1 {
		t.Errorf("dataset stats = %+v", stats)
	}
}

func TestExecute_RejectsInvalidDownload(t *testing.T) {
	// Downloader "succeeds" but writes garbage; the attempt must fail
	// validation and never place the file.
	f := newFixture(t, "http://example.com/sst/YYYYMMDD", nil, nil)
	f.sched.downloader = downloaderFunc(func(_ context.Context, _ *models.DatasetDescriptor, _ time.Time, destPath string) error {
		return os.WriteFile(destPath, make([]byte, 256), 0o644)
	})
	f.writeValid(t, utcDay(2024, 6, 7))
	f.writeValid(t, utcDay(2024, 6, 9))

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	report := f.sched.Execute(context.Background(), tasks)
	if report.Failed != 1 {
		t.Fatalf("report = %+v, want validation failure", report)
	}
	if _, err := os.Stat(filepath.Join(f.root, "sst", "sst_20240608.ogf")); !os.IsNotExist(err) {
		t.Error("invalid download must not be placed")
	}
}

type downloaderFunc func(context.Context, *models.DatasetDescriptor, time.Time, string) error

func (fn downloaderFunc) Fetch(ctx context.Context, ds *models.DatasetDescriptor, date time.Time, destPath string) error {
	return fn(ctx, ds, date, destPath)
}

func TestScanAndExecute_Reprocess(t *testing.T) {
	rp := &fakeReprocessor{}
	f := newFixture(t, "", &fakeDownloader{}, rp)
	rawDir := filepath.Join(f.root, "sst", "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		t.Fatal(err)
	}
	rawPath := filepath.Join(rawDir, "sst_20240608.ogf.raw")
	if err := os.WriteFile(rawPath, []byte("raw sensor payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Kind != models.TaskReprocess {
		t.Fatalf("expected one reprocess task, got %+v", tasks)
	}

	report := f.sched.Execute(context.Background(), tasks)
	if report.Completed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if atomic.LoadInt32(&rp.calls) != 1 {
		t.Errorf("reprocessor calls = %d", rp.calls)
	}
	if _, err := os.Stat(filepath.Join(f.root, "sst", "sst_20240608.ogf")); err != nil {
		t.Errorf("processed file missing: %v", err)
	}
	if report.Datasets["sst"].Reprocessed != 1 {
		t.Errorf("stats = %+v", report.Datasets["sst"])
	}
}

func TestScanAndExecute_CleanupExpiredQuarantine(t *testing.T) {
	f := newFixture(t, "", &fakeDownloader{}, nil)
	dir := filepath.Join(f.root, "sst")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(dir, "sst_20240501.ogf"+quarantine)
	if err := os.WriteFile(old, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := f.now.Add(-30 * oneDay)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}
	fresh := filepath.Join(dir, "sst_20240609.ogf"+quarantine)
	if err := os.WriteFile(fresh, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := f.sched.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Kind != models.TaskCleanup {
		t.Fatalf("expected one cleanup task, got %+v", tasks)
	}

	report := f.sched.Execute(context.Background(), tasks)
	if report.Completed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired quarantined file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh quarantined file must be kept")
	}
}

func TestRetryBackoff_ExactDoublingSchedule(t *testing.T) {
	bo := newRetryBackoff(time.Second, 5*time.Minute)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := bo.NextBackOff(); got != w {
			t.Errorf("delay %d = %v, want %v", i, got, w)
		}
	}

	// The cap bounds the doubling.
	bo = newRetryBackoff(4*time.Minute, 5*time.Minute)
	bo.NextBackOff()
	if got := bo.NextBackOff(); got != 5*time.Minute {
		t.Errorf("capped delay = %v, want 5m", got)
	}
}

func TestLastReportRoundTrip(t *testing.T) {
	f := newFixture(t, "", &fakeDownloader{}, nil)

	r, err := f.sched.LastReport()
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("expected no report before first run, got %+v", r)
	}

	report := f.sched.Execute(context.Background(), nil)
	got, err := f.sched.LastReport()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.StartedAt.Equal(report.StartedAt) {
		t.Errorf("persisted report = %+v, want %+v", got, report)
	}
}

func TestLedger_TaskRoundTrip(t *testing.T) {
	ledger, err := OpenLedger("")
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()

	task := &models.RecoveryTask{
		ID:          "t1",
		Kind:        models.TaskRefetch,
		Dataset:     "sst",
		FilePath:    "/data/sst/sst_20240607.ogf",
		Date:        "2024-06-07",
		State:       models.TaskRetrying,
		Attempts:    2,
		MaxAttempts: 3,
		Errors:      []string{"upstream unavailable"},
		CreatedAt:   utcDay(2024, 6, 10),
	}
	if err := ledger.SaveTask(task); err != nil {
		t.Fatal(err)
	}

	got, err := ledger.Task("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.TaskRetrying || got.Attempts != 2 || len(got.Errors) != 1 {
		t.Errorf("got %+v", got)
	}

	if _, err := ledger.Task("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}

	all, err := ledger.Tasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("tasks = %d, want 1", len(all))
	}
}
