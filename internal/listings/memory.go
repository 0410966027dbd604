package listings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/logger"
)

// Memory is a process-local Store. Expired entries are invisible to reads and
// are removed by Sweep.
type Memory struct {
	settings
	logger *zap.Logger

	mu    sync.RWMutex
	items map[string]*Listing
}

func NewMemory(log *zap.Logger, opts ...Option) *Memory {
	return &Memory{
		settings: newSettings(opts),
		logger:   logger.OrNop(log),
		items:    make(map[string]*Listing),
	}
}

func (m *Memory) Upsert(_ context.Context, l Listing) (*Listing, error) {
	l, err := Normalize(l, m.ttl, m.clock())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.items[l.URL]
	if existing != nil && !existing.Active(m.clock()) {
		existing = nil
	}

	merged := merge(existing, l)
	m.items[l.URL] = merged
	return merged.Clone(), nil
}

func (m *Memory) QueryActive(_ context.Context, filters ...Filter) ([]*Listing, error) {
	now := m.clock()

	m.mu.RLock()
	out := make([]*Listing, 0, len(m.items))
	for _, l := range m.items {
		if l.Active(now) {
			out = append(out, l.Clone())
		}
	}
	m.mu.RUnlock()

	sortListings(out)
	return Apply(m.logger, out, filters...), nil
}

func (m *Memory) RecordMatch(_ context.Context, url string, match Match) (*Listing, error) {
	url = strings.TrimSpace(url)
	if err := normalizeMatch(&match, m.clock()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.items[url]
	if !ok || !l.Active(m.clock()) {
		return nil, fmt.Errorf("listing %q: %w", url, ErrNotFound)
	}

	l.recordMatch(match)
	return l.Clone(), nil
}

// Sweep removes listings that expired before now and reports how many.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for url, l := range m.items {
		if !l.Active(now) {
			delete(m.items, url)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.clock()); n > 0 {
				m.logger.Debug("expired listings removed", zap.Int("count", n))
			}
		}
	}
}

func (m *Memory) Close() error { return nil }

// sortListings orders by most recent scrape first, then URL.
func sortListings(items []*Listing) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].ScrapedAt.Equal(items[j].ScrapedAt) {
			return items[i].ScrapedAt.After(items[j].ScrapedAt)
		}
		return items[i].URL < items[j].URL
	})
}
