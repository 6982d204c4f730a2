// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/metrics"
	"github.com/tomtom215/oceanus/internal/models"
)

// ErrNoSource indicates the dataset configures no upstream URL, so
// refetch tasks for it can never succeed.
var ErrNoSource = errors.New("dataset has no source url")

// Downloader fetches one dataset file for a date into destPath.
type Downloader interface {
	Fetch(ctx context.Context, ds *models.DatasetDescriptor, date time.Time, destPath string) error
}

// HTTPDownloader fetches dataset files from each dataset's SourceURL
// template.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates an HTTPDownloader. A nil client selects a
// default with a 5 minute overall timeout.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPDownloader{client: client}
}

// Fetch downloads the dataset's file for the date to destPath. The
// caller owns validation and atomic placement of the result.
func (d *HTTPDownloader) Fetch(ctx context.Context, ds *models.DatasetDescriptor, date time.Time, destPath string) error {
	if ds.SourceURL == "" {
		return fmt.Errorf("dataset %s: %w", ds.ID, ErrNoSource)
	}
	url := strings.Replace(ds.SourceURL, "YYYYMMDD", date.UTC().Format("20060102"), 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	logging.Debug().Str("dataset", ds.ID).Str("url", url).Int64("bytes", n).Msg("downloaded dataset file")
	return nil
}

// BreakerDownloader guards a Downloader with a circuit breaker so a
// failing upstream is probed, not hammered, while it is down.
type BreakerDownloader struct {
	inner Downloader
	cb    *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerDownloader wraps inner with a named circuit breaker that
// opens after five consecutive failures.
func NewBreakerDownloader(name string, inner Downloader) *BreakerDownloader {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	}
	return &BreakerDownloader{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Fetch implements Downloader.
func (b *BreakerDownloader) Fetch(ctx context.Context, ds *models.DatasetDescriptor, date time.Time, destPath string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.inner.Fetch(ctx, ds, date, destPath)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (b *BreakerDownloader) State() gobreaker.State {
	return b.cb.State()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
