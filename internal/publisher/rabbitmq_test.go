package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse_etl/internal/domain"
)

func TestNewPulseMessage_Action(t *testing.T) {
	pulse := &domain.Pulse{ID: "a", Name: "X"}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	created := NewPulseMessage(pulse, true, now)
	updated := NewPulseMessage(pulse, false, now)

	assert.Equal(t, ActionCreate, created.Action)
	assert.Equal(t, ActionUpdate, updated.Action)
	assert.Equal(t, time.UTC, created.Timestamp.Location())
	assert.True(t, now.Equal(created.Timestamp))
}

func TestPulseMessage_JSONShape(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 20, 30, 0, time.UTC)
	msg := NewPulseMessage(&domain.Pulse{
		ID:         "a",
		Name:       "X",
		Tags:       []string{"t1"},
		Created:    &created,
		References: []string{},
	}, true, created)

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "create", decoded["action"])

	pulse := decoded["pulse"].(map[string]any)
	assert.Equal(t, "a", pulse["id"])
	assert.Equal(t, "2024-01-15T10:20:30Z", pulse["created"])
	assert.Nil(t, pulse["modified"])
	assert.Equal(t, []any{"t1"}, pulse["tags"])
}
