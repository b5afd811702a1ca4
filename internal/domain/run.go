package domain

import "time"

// RunStats holds statistics about one ETL run.
type RunStats struct {
	RunID         string
	SourceID      string
	Pages         int
	Fetched       int
	Normalized    int
	Loaded        int
	Created       int
	Updated       int
	Invalid       int
	StorageFailed int
	Failed        int
	Published     int
	PublishFailed int
	StartedAt     time.Time
	Duration      time.Duration
	Err           string // first fatal error, empty if the run completed
}

// Aborted reports whether the run stopped on a fatal error.
func (s *RunStats) Aborted() bool {
	return s.Err != ""
}

// RunState is the persisted per-source aggregate of past runs.
type RunState struct {
	SourceID    string    `db:"source_id"`
	LastRunID   string    `db:"last_run_id"`
	LastRunAt   time.Time `db:"last_run_at"`
	LastError   string    `db:"last_error"`
	Runs        int64     `db:"runs"`
	TotalLoaded int64     `db:"total_loaded"`
}
