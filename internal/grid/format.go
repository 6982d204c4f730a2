// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package grid

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Format errors returned by Open. All are wrapped in ErrCorrupt so
// callers can treat any structural problem as a corrupted file.
var (
	ErrCorrupt     = errors.New("corrupt grid file")
	ErrBadMagic    = errors.New("bad magic")
	ErrBadVersion  = errors.New("unsupported version")
	ErrOversized   = errors.New("dimension exceeds sanity limit")
	ErrTruncated   = errors.New("truncated file")
	ErrNoVariables = errors.New("file declares no variables")
)

const (
	formatMagic   = "OGF1"
	formatVersion = 1

	flagIrregular = 1 << 0

	// Sanity caps applied while parsing. A corrupt header must not be
	// able to trigger a multi-gigabyte allocation.
	maxAxisLen  = 100_000
	maxVarCount = 256
	maxStrLen   = 4096
)

// Variable is one named value plane inside a grid file.
type Variable struct {
	Name     string
	Units    string
	LongName string
	Fill     float64

	data []float32
}

// File is one parsed grid file, fully resident in memory.
type File struct {
	Path      string
	Timestamp time.Time
	Irregular bool

	// Lats and Lons are the coordinate axes. For irregular files both
	// have length nObs and describe per-observation positions.
	Lats []float64
	Lons []float64

	vars  map[string]*Variable
	order []string
}

// Variables returns the variable names in declared order.
func (f *File) Variables() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Variable returns the named variable, if present.
func (f *File) Variable(name string) (*Variable, bool) {
	v, ok := f.vars[name]
	return v, ok
}

// HasAnyVariable reports whether at least one of the given names is
// present in the file.
func (f *File) HasAnyVariable(names []string) bool {
	for _, n := range names {
		if _, ok := f.vars[n]; ok {
			return true
		}
	}
	return false
}

// ValueAt returns the value of the named variable at grid indices
// (i, j). For irregular files i is the sample index and j is ignored.
// The second return is false when the cell holds the fill value, a
// non-finite number, or the variable is absent.
func (f *File) ValueAt(name string, i, j int) (float64, bool) {
	v, ok := f.vars[name]
	if !ok {
		return 0, false
	}

	var idx int
	if f.Irregular {
		idx = i
	} else {
		idx = i*len(f.Lons) + j
	}
	if idx < 0 || idx >= len(v.data) {
		return 0, false
	}

	val := float64(v.data[idx])
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, false
	}
	if !math.IsNaN(v.Fill) && val == v.Fill {
		return 0, false
	}
	return val, true
}

// Stats returns the min, max and non-finite ratio of a variable plane,
// excluding fill values from min/max. Used by the integrity validator.
func (v *Variable) Stats() (minVal, maxVal, invalidRatio float64) {
	minVal = math.Inf(1)
	maxVal = math.Inf(-1)
	invalid := 0

	for _, raw := range v.data {
		val := float64(raw)
		if math.IsNaN(val) || math.IsInf(val, 0) || (!math.IsNaN(v.Fill) && val == v.Fill) {
			invalid++
			continue
		}
		if val < minVal {
			minVal = val
		}
		if val > maxVal {
			maxVal = val
		}
	}

	if len(v.data) > 0 {
		invalidRatio = float64(invalid) / float64(len(v.data))
	}
	return minVal, maxVal, invalidRatio
}

// Open parses the OGF file at path into memory.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid file: %w", err)
	}
	defer fh.Close()

	f, err := read(bufio.NewReader(fh))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	f.Path = path
	return f, nil
}

func read(r io.Reader) (*File, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ErrTruncated
	}
	if string(magic[:]) != formatMagic {
		return nil, ErrBadMagic
	}

	var version, flags uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, ErrTruncated
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return nil, ErrTruncated
	}

	var unix int64
	if err := binary.Read(r, binary.LittleEndian, &unix); err != nil {
		return nil, ErrTruncated
	}

	var nLat, nLon uint32
	if err := binary.Read(r, binary.LittleEndian, &nLat); err != nil {
		return nil, ErrTruncated
	}
	if err := binary.Read(r, binary.LittleEndian, &nLon); err != nil {
		return nil, ErrTruncated
	}
	if nLat == 0 || nLon == 0 || nLat > maxAxisLen || nLon > maxAxisLen {
		return nil, fmt.Errorf("%w: %dx%d", ErrOversized, nLat, nLon)
	}

	f := &File{
		Timestamp: time.Unix(unix, 0).UTC(),
		Irregular: flags&flagIrregular != 0,
		vars:      make(map[string]*Variable),
	}
	if f.Irregular && nLat != nLon {
		return nil, fmt.Errorf("irregular file with mismatched axis lengths %d/%d", nLat, nLon)
	}

	f.Lats = make([]float64, nLat)
	if err := binary.Read(r, binary.LittleEndian, f.Lats); err != nil {
		return nil, ErrTruncated
	}
	f.Lons = make([]float64, nLon)
	if err := binary.Read(r, binary.LittleEndian, f.Lons); err != nil {
		return nil, ErrTruncated
	}

	var varCount uint16
	if err := binary.Read(r, binary.LittleEndian, &varCount); err != nil {
		return nil, ErrTruncated
	}
	if varCount == 0 {
		return nil, ErrNoVariables
	}
	if varCount > maxVarCount {
		return nil, fmt.Errorf("%w: %d variables", ErrOversized, varCount)
	}

	planeLen := int(nLat) * int(nLon)
	if f.Irregular {
		planeLen = int(nLat)
	}

	for i := 0; i < int(varCount); i++ {
		v := &Variable{}
		var err error
		if v.Name, err = readString(r); err != nil {
			return nil, err
		}
		if v.Units, err = readString(r); err != nil {
			return nil, err
		}
		if v.LongName, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &v.Fill); err != nil {
			return nil, ErrTruncated
		}
		v.data = make([]float32, planeLen)
		if err := binary.Read(r, binary.LittleEndian, v.data); err != nil {
			return nil, ErrTruncated
		}
		f.vars[v.Name] = v
		f.order = append(f.order, v.Name)
	}

	return f, nil
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", ErrTruncated
	}
	if n > maxStrLen {
		return "", fmt.Errorf("%w: string of %d bytes", ErrOversized, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", ErrTruncated
	}
	return string(buf), nil
}

// Builder assembles a File for writing. Used by the recovery processor
// and by tests to produce fixture files.
type Builder struct {
	Timestamp time.Time
	Irregular bool
	Lats      []float64
	Lons      []float64

	vars []*Variable
}

// AddVariable appends a value plane. For regular grids data must have
// len(lats)*len(lons) entries, for irregular files len(lats) entries.
func (b *Builder) AddVariable(name, units, longName string, fill float64, data []float32) {
	b.vars = append(b.vars, &Variable{
		Name:     name,
		Units:    units,
		LongName: longName,
		Fill:     fill,
		data:     data,
	})
}

// WriteFile writes the assembled grid atomically: the content goes to a
// temporary file in the destination directory which is renamed into
// place, so a concurrent reader sees either the old file or the new
// one, never a partial write.
func (b *Builder) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ogf-*")
	if err != nil {
		return fmt.Errorf("create temp grid file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	if err := b.write(w); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush grid file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close grid file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename grid file into place: %w", err)
	}
	return nil
}

func (b *Builder) write(w io.Writer) error {
	if _, err := w.Write([]byte(formatMagic)); err != nil {
		return err
	}
	var flags uint16
	if b.Irregular {
		flags |= flagIrregular
	}
	ts := b.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	for _, v := range []any{uint16(formatVersion), flags, ts.Unix(), uint32(len(b.Lats)), uint32(len(b.Lons))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, b.Lats); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, b.Lons); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(b.vars))); err != nil {
		return err
	}

	for _, v := range b.vars {
		for _, s := range []string{v.Name, v.Units, v.LongName} {
			if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
				return err
			}
			if _, err := w.Write([]byte(s)); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, v.Fill); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, v.data); err != nil {
			return err
		}
	}
	return nil
}
