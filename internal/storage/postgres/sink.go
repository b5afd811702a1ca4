package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pulse_etl/internal/domain"
)

// PulseSink writes a pulse row and its tag set in one transaction.
type PulseSink struct {
	pulses *PulseStore
	tags   *TagStore
	runs   *RunStateStore
	tx     *TransactionManager
}

func NewPulseSink(db *sqlx.DB) *PulseSink {
	return &PulseSink{
		pulses: NewPulseStore(db),
		tags:   NewTagStore(db),
		runs:   NewRunStateStore(db),
		tx:     NewTransactionManager(db),
	}
}

// Connect opens and pings a Postgres pool.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}

func (s *PulseSink) Upsert(ctx context.Context, pulse *domain.Pulse) (bool, error) {
	var inserted bool
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		inserted, err = s.pulses.Upsert(txCtx, pulse)
		if err != nil {
			return fmt.Errorf("upsert pulse: %w", err)
		}
		if err := s.tags.ReplaceForPulse(txCtx, pulse.ID, pulse.Tags); err != nil {
			return fmt.Errorf("replace tags: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("pulse %s: %w", pulse.ID, err)
	}
	return inserted, nil
}

// Get returns the stored pulse including its tags.
func (s *PulseSink) Get(ctx context.Context, id string) (*domain.Pulse, error) {
	pulse, err := s.pulses.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pulse.Tags, err = s.tags.GetByPulseID(ctx, id)
	if err != nil {
		return nil, err
	}
	return pulse, nil
}

func (s *PulseSink) RecordRun(ctx context.Context, stats *domain.RunStats) error {
	return s.runs.RecordRun(ctx, stats)
}
