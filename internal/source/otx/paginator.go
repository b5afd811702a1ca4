package otx

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"time"

	"pulse_etl/internal/domain"
	"pulse_etl/internal/metrics"
)

// PageFetcher fetches a single page by URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*domain.Page, error)
}

// PaginatorConfig bounds a pagination run.
type PaginatorConfig struct {
	MaxPages       int // 0 means follow cursors until exhausted
	MaxAttempts    int // per page, including the first attempt
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Paginator follows "next" cursors and yields raw records lazily. It is
// single-use: once exhausted, aborted or abandoned it yields nothing more.
// Cursor can seed a new Paginator to resume.
type Paginator struct {
	fetcher PageFetcher
	cfg     PaginatorConfig
	cursor  string
	pages   int
	done    bool
	logger  *slog.Logger
}

// NewPaginator creates a paginator starting at startURL.
func NewPaginator(fetcher PageFetcher, startURL string, cfg PaginatorConfig, logger *slog.Logger) *Paginator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Paginator{
		fetcher: fetcher,
		cfg:     cfg,
		cursor:  startURL,
		done:    startURL == "",
		logger:  logger,
	}
}

// Cursor returns the URL of the next page to fetch, or "" when exhausted.
func (p *Paginator) Cursor() string {
	return p.cursor
}

// Pages returns the number of pages fetched so far.
func (p *Paginator) Pages() int {
	return p.pages
}

// All yields records in source order. A non-nil error is always the last
// element of the sequence.
func (p *Paginator) All(ctx context.Context) iter.Seq2[domain.RawPulse, error] {
	return func(yield func(domain.RawPulse, error) bool) {
		for !p.done {
			if p.cfg.MaxPages > 0 && p.pages >= p.cfg.MaxPages {
				p.logger.Info("page limit reached",
					"max_pages", p.cfg.MaxPages,
					"next", p.cursor,
				)
				p.done = true
				return
			}

			page, err := p.fetchPage(ctx, p.cursor)
			if err != nil {
				p.done = true
				yield(nil, fmt.Errorf("fetch page %d: %w", p.pages+1, err))
				return
			}

			p.pages++
			p.cursor = page.Next
			if p.cursor == "" {
				p.done = true
			}

			p.logger.Debug("page consumed",
				"page", p.pages,
				"records", len(page.Results),
			)

			for _, rec := range page.Results {
				if !yield(rec, nil) {
					p.done = true
					return
				}
			}
		}
	}
}

func (p *Paginator) fetchPage(ctx context.Context, pageURL string) (*domain.Page, error) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		page, err := p.fetcher.FetchPage(ctx, pageURL)
		metrics.PageFetchDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.PagesFetched.Inc()
			return page, nil
		}

		if !errors.Is(err, domain.ErrTransientNetwork) {
			return nil, err
		}

		if attempt >= p.cfg.MaxAttempts {
			return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		backoff := p.calculateBackoff(attempt)
		metrics.PageRetries.Inc()
		p.logger.Warn("page fetch failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (p *Paginator) calculateBackoff(attempt int) time.Duration {
	limit := p.cfg.MaxBackoff
	if limit <= 0 {
		limit = math.MaxInt64
	}

	backoff := min(p.cfg.InitialBackoff, limit)
	for i := 1; i < attempt && backoff < limit; i++ {
		if backoff > limit/2 {
			return limit
		}
		backoff *= 2
	}
	return backoff
}
