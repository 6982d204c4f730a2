// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package grid

import (
	"sync"
	"time"
)

// Pool caches parsed grid files with their coordinate indexes.
//
// Entries are reference-counted: Acquire increments, Handle.Release
// decrements, and Sweep drops only entries that are unreferenced and
// idle. Invalidate detaches an entry immediately so the next Acquire
// reparses from disk, while in-flight readers keep their old Handle
// until they release it.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
	idleTTL time.Duration
}

type poolEntry struct {
	file     *File
	grid     *CoordinateGrid
	refs     int
	lastUsed time.Time
}

// Handle is a reference to a pooled file and its coordinate index.
type Handle struct {
	File *File
	Grid *CoordinateGrid

	pool *Pool
	path string
	once sync.Once
}

// DefaultIdleTTL is how long an unreferenced file stays resident.
const DefaultIdleTTL = 10 * time.Minute

// NewPool creates a pool whose Sweep drops entries unreferenced for at
// least idleTTL. Non-positive idleTTL uses DefaultIdleTTL.
func NewPool(idleTTL time.Duration) *Pool {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Pool{
		entries: make(map[string]*poolEntry),
		idleTTL: idleTTL,
	}
}

// Acquire returns a Handle for the file at path, opening and indexing
// it on first use. The caller must Release the handle after use.
func (p *Pool) Acquire(path string) (*Handle, error) {
	p.mu.Lock()
	if e, ok := p.entries[path]; ok {
		e.refs++
		e.lastUsed = time.Now()
		p.mu.Unlock()
		return &Handle{File: e.file, Grid: e.grid, pool: p, path: path}, nil
	}
	p.mu.Unlock()

	// Parse outside the lock; grid files can be large.
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	g := BuildCoordinateGrid(f)

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have populated the entry meanwhile; prefer
	// the resident copy so all readers share one index.
	if e, ok := p.entries[path]; ok {
		e.refs++
		e.lastUsed = time.Now()
		return &Handle{File: e.file, Grid: e.grid, pool: p, path: path}, nil
	}

	p.entries[path] = &poolEntry{file: f, grid: g, refs: 1, lastUsed: time.Now()}
	return &Handle{File: f, Grid: g, pool: p, path: path}, nil
}

// Release returns the handle's reference. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.pool.mu.Lock()
		defer h.pool.mu.Unlock()
		if e, ok := h.pool.entries[h.path]; ok && e.file == h.File {
			if e.refs > 0 {
				e.refs--
			}
			e.lastUsed = time.Now()
		}
	})
}

// Invalidate detaches the entry for path so the next Acquire reparses
// the file. Existing handles remain valid until released.
func (p *Pool) Invalidate(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, path)
}

// Sweep drops entries that are unreferenced and idle past the pool's
// TTL, returning the number removed. Run periodically by the cache
// janitor service.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.idleTTL)
	removed := 0
	for path, e := range p.entries {
		if e.refs == 0 && e.lastUsed.Before(cutoff) {
			delete(p.entries, path)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident files.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
