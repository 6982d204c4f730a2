// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package recovery

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/oceanus/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	taskKeyPrefix = "task:"
	reportLastKey = "report:last"
)

// ErrTaskNotFound indicates the ledger holds no task with that ID.
var ErrTaskNotFound = errors.New("recovery task not found")

// Ledger persists recovery tasks and the last run report in BadgerDB,
// surviving process restarts.
type Ledger struct {
	db *badger.DB
}

// OpenLedger opens (or creates) a BadgerDB ledger at path. An empty
// path opens an in-memory ledger, used by tests.
func OpenLedger(path string) (*Ledger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open recovery ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// NewLedger wraps an already-open BadgerDB handle.
func NewLedger(db *badger.DB) *Ledger {
	return &Ledger{db: db}
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SaveTask upserts one task.
func (l *Ledger) SaveTask(t *models.RecoveryTask) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(taskKeyPrefix+t.ID), data)
	})
}

// Task retrieves one task by ID.
func (l *Ledger) Task(id string) (*models.RecoveryTask, error) {
	var task models.RecoveryTask
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(taskKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &task)
		})
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Tasks returns every persisted task, unordered.
func (l *Ledger) Tasks() ([]models.RecoveryTask, error) {
	var tasks []models.RecoveryTask
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var task models.RecoveryTask
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &task)
			})
			if err != nil {
				return fmt.Errorf("decode task: %w", err)
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// SaveReport persists the report of the most recent recovery run.
func (l *Ledger) SaveReport(r *models.RecoveryReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(reportLastKey), data)
	})
}

// LastReport returns the report of the most recent recovery run, or
// (nil, nil) when no run has happened yet.
func (l *Ledger) LastReport() (*models.RecoveryReport, error) {
	var report models.RecoveryReport
	found := false
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reportLastKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get report: %w", err)
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &report, nil
}
