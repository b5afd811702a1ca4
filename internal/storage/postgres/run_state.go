package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pulse_etl/internal/domain"
)

type RunStateStore struct {
	db *sqlx.DB
	tx *TransactionManager
}

func NewRunStateStore(db *sqlx.DB) *RunStateStore {
	return &RunStateStore{db: db, tx: NewTransactionManager(db)}
}

const selectRunState = `
		SELECT source_id, last_run_id, last_run_at, last_error, runs, total_loaded
		FROM run_state
		WHERE source_id = $1`

func (s *RunStateStore) Get(ctx context.Context, sourceID string) (*domain.RunState, error) {
	return s.get(ctx, selectRunState, sourceID)
}

func (s *RunStateStore) get(ctx context.Context, query, sourceID string) (*domain.RunState, error) {
	var state domain.RunState
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for new sources
		return &domain.RunState{SourceID: sourceID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RunStateStore) Update(ctx context.Context, state *domain.RunState) error {
	query := `
		INSERT INTO run_state (source_id, last_run_id, last_run_at, last_error, runs, total_loaded)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id) DO UPDATE SET
			last_run_id = EXCLUDED.last_run_id,
			last_run_at = EXCLUDED.last_run_at,
			last_error = EXCLUDED.last_error,
			runs = EXCLUDED.runs,
			total_loaded = EXCLUDED.total_loaded`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.SourceID,
		state.LastRunID,
		state.LastRunAt,
		state.LastError,
		state.Runs,
		state.TotalLoaded,
	)
	return err
}

// RecordRun folds one run summary into the source's state. The state row is
// locked while it is read and rewritten.
func (s *RunStateStore) RecordRun(ctx context.Context, stats *domain.RunStats) error {
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		state, err := s.get(txCtx, selectRunState+" FOR UPDATE", stats.SourceID)
		if err != nil {
			return err
		}

		state.LastRunID = stats.RunID
		state.LastRunAt = stats.StartedAt.Add(stats.Duration)
		state.LastError = stats.Err
		state.Runs++
		state.TotalLoaded += int64(stats.Loaded)

		return s.Update(txCtx, state)
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", stats.RunID, err)
	}
	return nil
}
