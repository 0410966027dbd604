package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spigell/ats-screener/internal/screening"
)

// Memory is a process-local Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*screening.Submission
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]*screening.Submission)}
}

func (m *Memory) Put(_ context.Context, subs ...*screening.Submission) error {
	for _, s := range subs {
		if s == nil || strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("submission id is required")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range subs {
		m.items[s.ID] = s.Clone()
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*screening.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("submission %q: %w", id, screening.ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *Memory) List(_ context.Context, ids []string) ([]*screening.Submission, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		found   []*screening.Submission
		missing []string
	)
	for _, id := range dedupe(ids) {
		s, ok := m.items[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		found = append(found, s.Clone())
	}

	sortByOrdinal(found)
	return found, missing, nil
}

func (m *Memory) Pending(_ context.Context) ([]*screening.Submission, error) {
	return m.filter(func(s *screening.Submission) bool { return s.Pending() }), nil
}

func (m *Memory) Scored(_ context.Context) ([]*screening.Submission, error) {
	return m.filter(func(s *screening.Submission) bool { return !s.Pending() }), nil
}

func (m *Memory) filter(keep func(*screening.Submission) bool) []*screening.Submission {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*screening.Submission, 0, len(m.items))
	for _, s := range m.items {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}

	sortByOrdinal(out)
	return out
}

func (m *Memory) Update(_ context.Context, id string, fn func(*screening.Submission) error) (*screening.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("submission %q: %w", id, screening.ErrNotFound)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	m.items[id] = next
	return next.Clone(), nil
}

func (m *Memory) Close() error { return nil }
