// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package integrity classifies grid and image files as valid or
// corrupted before any other component is allowed to use them.
//
// Validation distinguishes hard errors from warnings. A file is valid
// iff it has zero hard errors; warnings (suspicious value ranges,
// mostly-empty planes, timestamp drift) are surfaced to callers and
// telemetry but never block usage.
package integrity

import (
	"fmt"
	"image"
	"math"
	"os"
	"strings"
	"time"

	// Registered for image.Decode format sniffing.
	_ "image/jpeg"
	_ "image/png"

	"github.com/tomtom215/oceanus/internal/grid"
	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/metrics"
	"github.com/tomtom215/oceanus/internal/models"
)

// Config bounds acceptable file sizes. Zero values fall back to the
// package defaults.
type Config struct {
	MinGridFileBytes  int64 `koanf:"min_grid_file_bytes"`
	MaxGridFileBytes  int64 `koanf:"max_grid_file_bytes"`
	MinImageFileBytes int64 `koanf:"min_image_file_bytes"`
	MaxImageFileBytes int64 `koanf:"max_image_file_bytes"`
}

// Defaults applied for zero Config fields.
const (
	DefaultMinGridFileBytes  = 64
	DefaultMaxGridFileBytes  = 2 << 30 // 2 GiB
	DefaultMinImageFileBytes = 32
	DefaultMaxImageFileBytes = 512 << 20
)

// Result is the outcome of validating one file.
type Result struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// plausibleRange is a physically plausible [min, max] band for a known
// variable family. Values outside the band are warnings, not errors:
// unusual water is suspicious, not proof of corruption.
type plausibleRange struct {
	min, max float64
}

// plausibleRanges maps variable-name substrings to plausible bands.
var plausibleRanges = map[string]plausibleRange{
	"temp":     {-5, 50},
	"sst":      {-5, 50},
	"thetao":   {-5, 50},
	"ph":       {5, 10},
	"sal":      {0, 45},
	"so":       {0, 45},
	"uo":       {-10, 10},
	"vo":       {-10, 10},
	"speed":    {-10, 10},
	"chl":      {0, 150},
	"o2":       {0, 600},
	"nitrate":  {0, 100},
	"plastics": {0, 1e6},
}

// maxInvalidRatio is the non-finite/fill fraction above which a
// variable plane is flagged as suspicious.
const maxInvalidRatio = 0.9

// maxTimestampDrift is how far the embedded timestamp may disagree with
// the filename-embedded date before a warning is raised.
const maxTimestampDrift = 24 * time.Hour

// Validator inspects files on behalf of the resolver and the recovery
// scheduler.
type Validator struct {
	cfg Config
}

// New creates a Validator, applying defaults for zero config fields.
func New(cfg Config) *Validator {
	if cfg.MinGridFileBytes <= 0 {
		cfg.MinGridFileBytes = DefaultMinGridFileBytes
	}
	if cfg.MaxGridFileBytes <= 0 {
		cfg.MaxGridFileBytes = DefaultMaxGridFileBytes
	}
	if cfg.MinImageFileBytes <= 0 {
		cfg.MinImageFileBytes = DefaultMinImageFileBytes
	}
	if cfg.MaxImageFileBytes <= 0 {
		cfg.MaxImageFileBytes = DefaultMaxImageFileBytes
	}
	return &Validator{cfg: cfg}
}

// ValidateGridFile classifies the grid file at path against the
// dataset's expectations. fileDate, when non-zero, is the
// filename-embedded date used for the timestamp drift warning.
func (v *Validator) ValidateGridFile(path string, ds *models.DatasetDescriptor, fileDate time.Time) Result {
	var res Result

	info, err := os.Stat(path)
	if err != nil {
		res.errorf("stat: %v", err)
		return finish(&res, ds.ID)
	}
	if info.Size() < v.cfg.MinGridFileBytes {
		res.errorf("file size %d below minimum %d", info.Size(), v.cfg.MinGridFileBytes)
	}
	if info.Size() > v.cfg.MaxGridFileBytes {
		res.errorf("file size %d above maximum %d", info.Size(), v.cfg.MaxGridFileBytes)
	}
	if len(res.Errors) > 0 {
		return finish(&res, ds.ID)
	}

	f, err := grid.Open(path)
	if err != nil {
		res.errorf("parse: %v", err)
		return finish(&res, ds.ID)
	}

	if f.Irregular != ds.Irregular {
		res.errorf("file irregular=%v but dataset declares irregular=%v", f.Irregular, ds.Irregular)
	}
	if !f.HasAnyVariable(ds.Variables) {
		res.errorf("none of the expected variables %v present (file has %v)", ds.Variables, f.Variables())
	}

	v.checkCoordinates(f, &res)
	v.checkVariables(f, &res)

	if !fileDate.IsZero() && !f.Timestamp.IsZero() {
		drift := f.Timestamp.Sub(fileDate)
		if drift < 0 {
			drift = -drift
		}
		if drift > maxTimestampDrift {
			res.warnf("embedded timestamp %s disagrees with filename date %s by %s",
				f.Timestamp.Format("2006-01-02"), fileDate.Format("2006-01-02"), drift)
		}
	}

	return finish(&res, ds.ID)
}

// checkCoordinates verifies latitude bounds and a tolerant longitude
// convention: either [-180,180] or [0,360], each with a 1 degree slack.
func (v *Validator) checkCoordinates(f *grid.File, res *Result) {
	for _, lat := range f.Lats {
		if lat < -90 || lat > 90 {
			res.errorf("latitude %v outside [-90, 90]", lat)
			break
		}
	}

	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, lon := range f.Lons {
		if lon < minLon {
			minLon = lon
		}
		if lon > maxLon {
			maxLon = lon
		}
	}
	if len(f.Lons) == 0 {
		return
	}

	signed := minLon >= -181 && maxLon <= 181
	unsigned := minLon >= -1 && maxLon <= 361
	if !signed && !unsigned {
		res.errorf("longitudes [%v, %v] match neither convention", minLon, maxLon)
	}
}

func (v *Validator) checkVariables(f *grid.File, res *Result) {
	for _, name := range f.Variables() {
		vr, _ := f.Variable(name)
		minVal, maxVal, invalidRatio := vr.Stats()

		if invalidRatio > maxInvalidRatio {
			res.warnf("variable %s is %.0f%% non-finite or fill", name, invalidRatio*100)
			continue
		}

		for sub, band := range plausibleRanges {
			if !strings.Contains(strings.ToLower(name), sub) {
				continue
			}
			if minVal < band.min || maxVal > band.max {
				res.warnf("variable %s range [%v, %v] outside plausible [%v, %v]",
					name, minVal, maxVal, band.min, band.max)
			}
			break
		}
	}
}

// ValidateImageFile classifies a rendered image file: it must decode as
// a known raster format and sit within the configured size band.
func (v *Validator) ValidateImageFile(path string) Result {
	var res Result

	info, err := os.Stat(path)
	if err != nil {
		res.errorf("stat: %v", err)
		return finish(&res, "image")
	}
	if info.Size() < v.cfg.MinImageFileBytes {
		res.errorf("file size %d below minimum %d", info.Size(), v.cfg.MinImageFileBytes)
	}
	if info.Size() > v.cfg.MaxImageFileBytes {
		res.errorf("file size %d above maximum %d", info.Size(), v.cfg.MaxImageFileBytes)
	}
	if len(res.Errors) > 0 {
		return finish(&res, "image")
	}

	fh, err := os.Open(path)
	if err != nil {
		res.errorf("open: %v", err)
		return finish(&res, "image")
	}
	defer fh.Close()

	// Full decode: a header-only check passes files truncated inside
	// the pixel data.
	img, format, err := image.Decode(fh)
	if err != nil {
		res.errorf("decode: %v", err)
		return finish(&res, "image")
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		res.errorf("%s image with empty dimensions %dx%d", format, b.Dx(), b.Dy())
	}

	return finish(&res, "image")
}

// finish sets OK, records metrics and logs warnings.
func finish(res *Result, subject string) Result {
	res.OK = len(res.Errors) == 0

	if !res.OK {
		metrics.IntegrityFailures.WithLabelValues(subject).Inc()
	}
	for _, w := range res.Warnings {
		logging.Debug().Str("subject", subject).Str("warning", w).Msg("integrity warning")
	}
	return *res
}
