package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pulse_etl/internal/domain"
)

var ErrPulseNotFound = errors.New("pulse not found")

type PulseStore struct {
	db *sqlx.DB
}

func NewPulseStore(db *sqlx.DB) *PulseStore {
	return &PulseStore{db: db}
}

type pulseRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Description   string         `db:"description"`
	AuthorName    string         `db:"author_name"`
	Created       *time.Time     `db:"created"`
	Modified      *time.Time     `db:"modified"`
	ReferenceURLs pq.StringArray `db:"reference_urls"`
}

// Upsert writes every column of pulse, replacing an existing row with the
// same ID. It reports whether the row was inserted.
func (s *PulseStore) Upsert(ctx context.Context, pulse *domain.Pulse) (bool, error) {
	query := `
		INSERT INTO pulses (
			id, name, description, author_name, created, modified, reference_urls, loaded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			author_name = EXCLUDED.author_name,
			created = EXCLUDED.created,
			modified = EXCLUDED.modified,
			reference_urls = EXCLUDED.reference_urls,
			loaded_at = EXCLUDED.loaded_at
		RETURNING (xmax = 0) AS inserted`

	refs := pulse.References
	if refs == nil {
		refs = []string{}
	}

	var inserted bool
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		pulse.ID,
		pulse.Name,
		pulse.Description,
		pulse.AuthorName,
		pulse.Created,
		pulse.Modified,
		pq.Array(refs),
	).Scan(&inserted)
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// Get loads a pulse without its tags.
func (s *PulseStore) Get(ctx context.Context, id string) (*domain.Pulse, error) {
	query := `
		SELECT id, name, description, author_name, created, modified, reference_urls
		FROM pulses
		WHERE id = $1`

	var row pulseRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPulseNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return &domain.Pulse{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		AuthorName:  row.AuthorName,
		Created:     utc(row.Created),
		Modified:    utc(row.Modified),
		References:  []string(row.ReferenceURLs),
	}, nil
}

func (s *PulseStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM pulses")
	return count, err
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
