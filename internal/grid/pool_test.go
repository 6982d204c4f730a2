// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package grid

import (
	"sync"
	"testing"
	"time"
)

func TestPool_AcquireSharesParsedFile(t *testing.T) {
	path := writeTestGrid(t, t.TempDir(), "sst_20240715.ogf")
	p := NewPool(time.Minute)

	h1, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h2, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire second: %v", err)
	}

	if h1.File != h2.File {
		t.Error("expected both handles to share one parsed file")
	}
	if p.Len() != 1 {
		t.Errorf("pool len = %d, want 1", p.Len())
	}

	h1.Release()
	h2.Release()
}

func TestPool_SweepKeepsReferencedEntries(t *testing.T) {
	path := writeTestGrid(t, t.TempDir(), "sst_20240715.ogf")
	p := NewPool(time.Nanosecond)

	h, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if removed := p.Sweep(); removed != 0 {
		t.Errorf("Sweep removed %d referenced entries", removed)
	}

	h.Release()
	time.Sleep(5 * time.Millisecond)
	if removed := p.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1 after release", removed)
	}
	if p.Len() != 0 {
		t.Errorf("pool len = %d after sweep, want 0", p.Len())
	}
}

func TestPool_InvalidateLeavesHandlesUsable(t *testing.T) {
	dir := t.TempDir()
	path := writeTestGrid(t, dir, "sst_20240715.ogf")
	p := NewPool(time.Minute)

	h, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	p.Invalidate(path)

	// The old handle still reads its snapshot.
	if _, valid := h.File.ValueAt("sst", 0, 0); !valid {
		t.Error("handle unusable after Invalidate")
	}

	// A fresh Acquire reparses.
	h2, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after Invalidate: %v", err)
	}
	if h2.File == h.File {
		t.Error("expected a fresh parse after Invalidate")
	}

	h.Release() // no-op against the detached entry
	h2.Release()
}

func TestPool_ReleaseIdempotent(t *testing.T) {
	path := writeTestGrid(t, t.TempDir(), "sst_20240715.ogf")
	p := NewPool(time.Minute)

	h, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h.Release()
	h.Release()

	// Double release must not drive refs negative: a second acquire and
	// sweep cycle still behaves.
	h2, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after double release: %v", err)
	}
	if removed := p.Sweep(); removed != 0 {
		t.Errorf("Sweep removed an entry still referenced, removed=%d", removed)
	}
	h2.Release()
}

func TestPool_ConcurrentAcquire(t *testing.T) {
	path := writeTestGrid(t, t.TempDir(), "sst_20240715.ogf")
	p := NewPool(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(path)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if _, valid := h.File.ValueAt("sst", 1, 1); !valid {
				t.Error("unexpected invalid value")
			}
			h.Release()
		}()
	}
	wg.Wait()

	if p.Len() != 1 {
		t.Errorf("pool len = %d, want 1", p.Len())
	}
}
