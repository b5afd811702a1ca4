//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pulse_etl/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_pulses.up.sql"),
			filepath.Join(migrationsPath, "002_create_run_state.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := Connect(s.ctx, connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM pulse_tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM pulses")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM run_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func ts(t time.Time) *time.Time {
	return &t
}

func (s *PostgresIntegrationSuite) TestPulseSink_Upsert_Insert() {
	sink := NewPulseSink(s.db)
	created := time.Date(2024, 1, 15, 10, 20, 30, 123000000, time.UTC)

	pulse := &domain.Pulse{
		ID:          "5f1a2b3c",
		Name:        "Emotet",
		Description: "C2 servers",
		AuthorName:  "AlienVault",
		Tags:        []string{"botnet", "emotet"},
		Created:     ts(created),
		References:  []string{"https://b.example", "https://a.example"},
	}

	inserted, err := sink.Upsert(s.ctx, pulse)
	s.NoError(err)
	s.True(inserted)

	got, err := sink.Get(s.ctx, "5f1a2b3c")
	s.Require().NoError(err)
	s.Equal("Emotet", got.Name)
	s.Equal("C2 servers", got.Description)
	s.Equal("AlienVault", got.AuthorName)
	s.Equal([]string{"botnet", "emotet"}, got.Tags)
	s.Equal([]string{"https://b.example", "https://a.example"}, got.References)
	s.Require().NotNil(got.Created)
	s.True(created.Equal(*got.Created))
	s.Nil(got.Modified)
}

func (s *PostgresIntegrationSuite) TestPulseSink_Upsert_ReplacesExisting() {
	sink := NewPulseSink(s.db)

	pulse := &domain.Pulse{
		ID:         "a",
		Name:       "Original",
		Tags:       []string{"t1", "t2"},
		References: []string{"https://one"},
	}
	_, err := sink.Upsert(s.ctx, pulse)
	s.Require().NoError(err)

	pulse.Name = "Updated"
	pulse.Tags = []string{"t3"}
	pulse.References = nil
	pulse.Modified = ts(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	inserted, err := sink.Upsert(s.ctx, pulse)
	s.NoError(err)
	s.False(inserted)

	count, err := sink.pulses.Count(s.ctx)
	s.NoError(err)
	s.Equal(1, count)

	got, err := sink.Get(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal("Updated", got.Name)
	s.Equal([]string{"t3"}, got.Tags)
	s.Empty(got.References)
	s.NotNil(got.Modified)
}

func (s *PostgresIntegrationSuite) TestPulseSink_Upsert_Idempotent() {
	sink := NewPulseSink(s.db)
	pulse := &domain.Pulse{ID: "a", Name: "X", Tags: []string{"t1"}}

	for i := 0; i < 3; i++ {
		_, err := sink.Upsert(s.ctx, pulse)
		s.Require().NoError(err)
	}

	count, err := sink.pulses.Count(s.ctx)
	s.NoError(err)
	s.Equal(1, count)

	tags, err := sink.tags.GetByPulseID(s.ctx, "a")
	s.NoError(err)
	s.Equal([]string{"t1"}, tags)
}

func (s *PostgresIntegrationSuite) TestPulseStore_GetMissing() {
	store := NewPulseStore(s.db)

	_, err := store.Get(s.ctx, "missing")

	s.True(errors.Is(err, ErrPulseNotFound))
}

func (s *PostgresIntegrationSuite) TestTagStore_ReplaceForPulse_Empty() {
	sink := NewPulseSink(s.db)
	_, err := sink.Upsert(s.ctx, &domain.Pulse{ID: "a", Name: "X", Tags: []string{"t1"}})
	s.Require().NoError(err)

	err = sink.tags.ReplaceForPulse(s.ctx, "a", nil)
	s.NoError(err)

	tags, err := sink.tags.GetByPulseID(s.ctx, "a")
	s.NoError(err)
	s.Empty(tags)
}

func (s *PostgresIntegrationSuite) TestRunStateStore_GetNew() {
	store := NewRunStateStore(s.db)

	state, err := store.Get(s.ctx, "new-source")
	s.NoError(err)
	s.NotNil(state)
	s.Equal("new-source", state.SourceID)
	s.True(state.LastRunAt.IsZero())
	s.Equal(int64(0), state.TotalLoaded)
}

func (s *PostgresIntegrationSuite) TestRunStateStore_RecordRunAccumulates() {
	store := NewRunStateStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := store.RecordRun(s.ctx, &domain.RunStats{
		RunID:     "run-1",
		SourceID:  "otx",
		Loaded:    3,
		StartedAt: now,
	})
	s.NoError(err)

	err = store.RecordRun(s.ctx, &domain.RunStats{
		RunID:     "run-2",
		SourceID:  "otx",
		Loaded:    2,
		StartedAt: now.Add(time.Minute),
		Duration:  time.Second,
		Err:       "fetch page 2: authentication failed",
	})
	s.NoError(err)

	state, err := store.Get(s.ctx, "otx")
	s.NoError(err)
	s.Equal("run-2", state.LastRunID)
	s.Equal(int64(2), state.Runs)
	s.Equal(int64(5), state.TotalLoaded)
	s.Equal("fetch page 2: authentication failed", state.LastError)
	s.WithinDuration(now.Add(time.Minute+time.Second), state.LastRunAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	store := NewPulseStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := store.Upsert(ctx, &domain.Pulse{ID: "rolled-back", Name: "X"}); err != nil {
			return err
		}
		return context.Canceled
	})
	s.ErrorIs(err, context.Canceled)

	_, err = store.Get(s.ctx, "rolled-back")
	s.ErrorIs(err, ErrPulseNotFound)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewPulseStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := store.Upsert(ctx, &domain.Pulse{ID: "committed", Name: "X"})
		return err
	})
	s.NoError(err)

	got, err := store.Get(s.ctx, "committed")
	s.NoError(err)
	s.Equal("X", got.Name)
}

func (s *PostgresIntegrationSuite) TestTransaction_NestedCallJoinsOuter() {
	tm := NewTransactionManager(s.db)
	sink := NewPulseSink(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		outer := GetTxFromContext(ctx)
		s.Require().NotNil(outer)

		if _, err := sink.Upsert(ctx, &domain.Pulse{ID: "nested", Name: "X", Tags: []string{"t1"}}); err != nil {
			return err
		}
		return tm.WithTransaction(ctx, func(inner context.Context) error {
			s.Same(outer, GetTxFromContext(inner))
			return errors.New("abort outer")
		})
	})
	s.EqualError(err, "abort outer")

	_, err = sink.Get(s.ctx, "nested")
	s.ErrorIs(err, ErrPulseNotFound)
}

func (s *PostgresIntegrationSuite) TestPulseSink_Upsert_ErrorNamesPulse() {
	sink := NewPulseSink(s.db)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := sink.Upsert(ctx, &domain.Pulse{ID: "5f1a2b3c", Name: "X"})

	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)
	s.Contains(err.Error(), "pulse 5f1a2b3c: begin transaction")
}
