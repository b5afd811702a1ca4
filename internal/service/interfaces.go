package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"pulse_etl/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	StartURL() (string, error)
	FetchPage(ctx context.Context, pageURL string) (*domain.Page, error)
}

// PulseSink persists pulses keyed by ID. Upsert replaces an existing
// document and reports whether it was newly created.
type PulseSink interface {
	Upsert(ctx context.Context, pulse *domain.Pulse) (bool, error)
}

type RunLog interface {
	RecordRun(ctx context.Context, stats *domain.RunStats) error
}

type Publisher interface {
	Publish(ctx context.Context, pulse *domain.Pulse, isNew bool) error
	Close() error
}
