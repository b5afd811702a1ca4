package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pulse_etl/internal/domain"
	"pulse_etl/internal/metrics"
	"pulse_etl/internal/normalizer"
	"pulse_etl/internal/source/otx"
)

type ETLService struct {
	source     Source
	sink       PulseSink
	runLog     RunLog
	publisher  Publisher
	logger     *slog.Logger
	pagination otx.PaginatorConfig
}

// NewETLService wires a run. runLog and publisher are optional.
func NewETLService(
	source Source,
	sink PulseSink,
	runLog RunLog,
	publisher Publisher,
	logger *slog.Logger,
	pagination otx.PaginatorConfig,
) *ETLService {
	return &ETLService{
		source:     source,
		sink:       sink,
		runLog:     runLog,
		publisher:  publisher,
		logger:     logger.With("source", source.ID()),
		pagination: pagination,
	}
}

// Run pages through the source once, normalizing and loading every record.
// Invalid records and failed writes are counted and skipped. A source error
// or cancellation aborts the run; the returned stats then cover the progress
// made up to that point and the error is returned alongside them.
func (s *ETLService) Run(ctx context.Context) (*domain.RunStats, error) {
	stats := &domain.RunStats{
		RunID:     uuid.NewString(),
		SourceID:  s.source.ID(),
		StartedAt: time.Now().UTC(),
	}
	logger := s.logger.With("run_id", stats.RunID)

	logger.Info("starting run",
		"source_name", s.source.Name(),
		"max_pages", s.pagination.MaxPages,
		"max_attempts", s.pagination.MaxAttempts,
	)

	err := s.extract(ctx, logger, stats)
	stats.Duration = time.Since(stats.StartedAt)
	if err != nil {
		stats.Err = err.Error()
	}

	s.finish(ctx, logger, stats)

	return stats, err
}

func (s *ETLService) extract(ctx context.Context, logger *slog.Logger, stats *domain.RunStats) error {
	startURL, err := s.source.StartURL()
	if err != nil {
		return fmt.Errorf("start url: %w", err)
	}

	pager := otx.NewPaginator(s.source, startURL, s.pagination, logger)
	defer func() { stats.Pages = pager.Pages() }()

	for raw, err := range pager.All(ctx) {
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stats.Fetched++
		metrics.Records.WithLabelValues(metrics.OutcomeFetched).Inc()

		// A record that has started is finished even if ctx is cancelled.
		s.process(context.WithoutCancel(ctx), logger, raw, stats)
	}

	return nil
}

func (s *ETLService) process(ctx context.Context, logger *slog.Logger, raw domain.RawPulse, stats *domain.RunStats) {
	pulse, warnings, err := normalizer.Normalize(raw)
	if err != nil {
		stats.Invalid++
		stats.Failed++
		metrics.Records.WithLabelValues(metrics.OutcomeInvalid).Inc()
		logger.Warn("skipping invalid record", "id", raw[normalizer.FieldID], "error", err)
		return
	}
	for _, w := range warnings {
		logger.Warn("field set to unknown", "id", pulse.ID, "field", w.Field, "error", w)
	}

	stats.Normalized++
	metrics.Records.WithLabelValues(metrics.OutcomeNormalized).Inc()

	isNew, err := s.load(ctx, &pulse)
	if err != nil {
		stats.StorageFailed++
		stats.Failed++
		metrics.Records.WithLabelValues(metrics.OutcomeStorageFailed).Inc()
		logger.Error("failed to load pulse", "id", pulse.ID, "error", err)
		return
	}

	stats.Loaded++
	metrics.Records.WithLabelValues(metrics.OutcomeLoaded).Inc()
	if isNew {
		stats.Created++
	} else {
		stats.Updated++
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, &pulse, isNew); err != nil {
			stats.PublishFailed++
			metrics.Records.WithLabelValues(metrics.OutcomePublishFailed).Inc()
			logger.Warn("failed to publish pulse", "id", pulse.ID, "error", err)
		} else {
			stats.Published++
			metrics.Records.WithLabelValues(metrics.OutcomePublished).Inc()
		}
	}
}

func (s *ETLService) load(ctx context.Context, pulse *domain.Pulse) (bool, error) {
	isNew, err := s.sink.Upsert(ctx, pulse)
	if err != nil {
		return false, fmt.Errorf("%w: upsert pulse %s: %w", domain.ErrStorage, pulse.ID, err)
	}
	return isNew, nil
}

func (s *ETLService) finish(ctx context.Context, logger *slog.Logger, stats *domain.RunStats) {
	metrics.LastRunTimestamp.SetToCurrentTime()
	if stats.Aborted() {
		metrics.LastRunSuccess.Set(0)
	} else {
		metrics.LastRunSuccess.Set(1)
	}

	if s.runLog != nil {
		if err := s.runLog.RecordRun(context.WithoutCancel(ctx), stats); err != nil {
			logger.Error("failed to record run", "error", err)
		}
	}

	attrs := []any{
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"normalized", stats.Normalized,
		"loaded", stats.Loaded,
		"created", stats.Created,
		"updated", stats.Updated,
		"invalid", stats.Invalid,
		"storage_failed", stats.StorageFailed,
		"failed", stats.Failed,
		"published", stats.Published,
		"publish_failed", stats.PublishFailed,
		"duration", stats.Duration,
	}
	if stats.Aborted() {
		logger.Error("run aborted", append(attrs, "error", stats.Err)...)
		return
	}
	logger.Info("run completed", attrs...)
}
