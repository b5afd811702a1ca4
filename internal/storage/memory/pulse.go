// Package memory is an in-process sink used for dry runs and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"pulse_etl/internal/domain"
)

// PulseStore keeps pulses in a map keyed by ID.
type PulseStore struct {
	mu     sync.Mutex
	pulses map[string]domain.Pulse
	runs   []domain.RunStats
}

func NewPulseStore() *PulseStore {
	return &PulseStore{pulses: make(map[string]domain.Pulse)}
}

func (s *PulseStore) Upsert(_ context.Context, pulse *domain.Pulse) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.pulses[pulse.ID]
	s.pulses[pulse.ID] = clonePulse(pulse)
	return !exists, nil
}

// Get returns a copy of the stored pulse.
func (s *PulseStore) Get(id string) (domain.Pulse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pulses[id]
	if !ok {
		return domain.Pulse{}, false
	}
	return clonePulse(&p), true
}

func (s *PulseStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pulses)
}

// All returns every stored pulse ordered by ID.
func (s *PulseStore) All() []domain.Pulse {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Pulse, 0, len(s.pulses))
	for _, p := range s.pulses {
		out = append(out, clonePulse(&p))
	}
	slices.SortFunc(out, func(a, b domain.Pulse) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *PulseStore) RecordRun(_ context.Context, stats *domain.RunStats) error {
	s.mu.Lock()
	s.runs = append(s.runs, *stats)
	s.mu.Unlock()
	return nil
}

func (s *PulseStore) Runs() []domain.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RunStats(nil), s.runs...)
}

func clonePulse(p *domain.Pulse) domain.Pulse {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	c.References = slices.Clone(p.References)
	c.Created = cloneTime(p.Created)
	c.Modified = cloneTime(p.Modified)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
