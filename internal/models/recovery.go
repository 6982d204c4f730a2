// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package models

import "time"

// TaskKind classifies recovery work.
type TaskKind string

const (
	// TaskRefetch re-downloads a missing or corrupted grid file.
	TaskRefetch TaskKind = "refetch"

	// TaskReprocess rebuilds a processed file from its raw counterpart.
	TaskReprocess TaskKind = "reprocess"

	// TaskCleanup removes quarantined or stale artifacts.
	TaskCleanup TaskKind = "cleanup"
)

// TaskState is the lifecycle state of a RecoveryTask.
type TaskState string

const (
	TaskCreated    TaskState = "created"
	TaskAttempting TaskState = "attempting"
	TaskRetrying   TaskState = "retrying"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// Terminal reports whether the state ends a task's lifecycle.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// RecoveryTask is one unit of repair work. Tasks are owned solely by
// the recovery scheduler for their lifetime and always terminate in
// TaskCompleted or TaskFailed.
type RecoveryTask struct {
	ID      string   `json:"id"`
	Kind    TaskKind `json:"kind"`
	Dataset string   `json:"dataset"`

	// FilePath is the target file, for refetch the destination path and
	// for reprocess the raw source path.
	FilePath string `json:"file_path"`

	// Date is the target date for refetch tasks, ISO YYYY-MM-DD.
	Date string `json:"date,omitempty"`

	State       TaskState `json:"state"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`

	// Errors accumulates one message per failed attempt.
	Errors []string `json:"errors,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
}

// DatasetRecoveryStats aggregates task outcomes for one dataset.
type DatasetRecoveryStats struct {
	Recovered   int `json:"recovered"`
	Reprocessed int `json:"reprocessed"`
	Cleaned     int `json:"cleaned"`
	Failed      int `json:"failed"`
}

// TaskOutcome is the per-task line item of a RecoveryReport.
type TaskOutcome struct {
	ID       string    `json:"id"`
	Kind     TaskKind  `json:"kind"`
	Dataset  string    `json:"dataset"`
	Date     string    `json:"date,omitempty"`
	State    TaskState `json:"state"`
	Attempts int       `json:"attempts"`
	Errors   []string  `json:"errors,omitempty"`
}

// RecoveryReport is the JSON-serializable summary of a recovery run.
type RecoveryReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Tasks []TaskOutcome `json:"tasks"`

	// Datasets maps dataset ID to its aggregate counts.
	Datasets map[string]DatasetRecoveryStats `json:"datasets"`

	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
