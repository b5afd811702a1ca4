package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// ReplaceForPulse makes tags the exact tag set of pulseID.
func (s *TagStore) ReplaceForPulse(ctx context.Context, pulseID string, tags []string) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM pulse_tags WHERE pulse_id = $1",
		pulseID,
	)
	if err != nil {
		return err
	}

	if len(tags) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO pulse_tags (pulse_id, tag) VALUES ")
	valueArgs := make([]interface{}, 0, len(tags)+1)
	valueArgs = append(valueArgs, pulseID)

	for i, tag := range tags {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		valueArgs = append(valueArgs, tag)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err = exec.ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

func (s *TagStore) GetByPulseID(ctx context.Context, pulseID string) ([]string, error) {
	query := `SELECT tag FROM pulse_tags WHERE pulse_id = $1 ORDER BY tag`

	tags := []string{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &tags, query, pulseID)
	return tags, err
}
