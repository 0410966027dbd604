package listings

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const jobURL = "https://jobs.example.com/posting/42"

func TestMemoryUpsertDeduplicatesByURL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(zap.NewNop(), WithClock(clock.Now))

	first, err := m.Upsert(ctx, Listing{
		URL:     jobURL,
		Title:   "Go Engineer",
		Source:  "linkedin",
		Matches: []Match{{SubmissionID: "s1", MatchScore: 40}},
	})
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), first.ScrapedAt)
	assert.Equal(t, clock.Now().Add(DefaultTTL), first.ExpiresAt)

	clock.Advance(time.Hour)
	second, err := m.Upsert(ctx, Listing{
		URL:     jobURL,
		Company: "Acme",
		Matches: []Match{{SubmissionID: "s1", MatchScore: 70}, {SubmissionID: "s2", MatchScore: 55}},
	})
	require.NoError(t, err)

	all, err := m.QueryActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "same URL never produces two listings")

	assert.Equal(t, clock.Now(), second.ScrapedAt)
	assert.Equal(t, clock.Now().Add(DefaultTTL), second.ExpiresAt)
	assert.Equal(t, "Go Engineer", second.Title)
	assert.Equal(t, "Acme", second.Company)
	require.Len(t, second.Matches, 2)

	s1, ok := second.MatchFor("s1")
	require.True(t, ok)
	assert.Equal(t, 70, s1.MatchScore)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(nil, WithClock(clock.Now), WithTTL(time.Hour))

	_, err := m.Upsert(ctx, Listing{URL: jobURL})
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	active, err := m.QueryActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	clock.Advance(time.Minute)
	active, err = m.QueryActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "expiresAt must be strictly after now")

	_, err = m.RecordMatch(ctx, jobURL, Match{SubmissionID: "s1", MatchScore: 10})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, m.Sweep(clock.Now()))
	assert.Zero(t, m.Sweep(clock.Now()))

	fresh, err := m.Upsert(ctx, Listing{URL: jobURL, Matches: []Match{{SubmissionID: "s9", MatchScore: 1}}})
	require.NoError(t, err)
	assert.Len(t, fresh.Matches, 1)
}

func TestMemoryRecordMatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	_, err := m.RecordMatch(ctx, jobURL, Match{SubmissionID: "s1", MatchScore: 50})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Upsert(ctx, Listing{URL: jobURL})
	require.NoError(t, err)

	l, err := m.RecordMatch(ctx, jobURL, Match{SubmissionID: "s1", MatchScore: 50})
	require.NoError(t, err)
	require.Len(t, l.Matches, 1)
	assert.False(t, l.Matches[0].MatchedAt.IsZero())

	l, err = m.RecordMatch(ctx, jobURL, Match{SubmissionID: "s1", MatchScore: 65, MatchedSkills: []string{"go"}})
	require.NoError(t, err)
	require.Len(t, l.Matches, 1)
	assert.Equal(t, 65, l.Matches[0].MatchScore)

	_, err = m.RecordMatch(ctx, jobURL, Match{SubmissionID: "s1", MatchScore: 101})
	assert.ErrorIs(t, err, ErrInvalidListing)
}

func TestMemoryRejectsInvalidListing(t *testing.T) {
	_, err := NewMemory(nil).Upsert(context.Background(), Listing{URL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidListing)

	_, err = NewMemory(nil).Upsert(context.Background(), Listing{URL: jobURL, Matches: []Match{{MatchScore: 10}}})
	assert.ErrorIs(t, err, ErrInvalidListing)
}

func TestMemoryConcurrentUpsertSameURL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Upsert(ctx, Listing{
				URL:     jobURL,
				Matches: []Match{{SubmissionID: fmt.Sprintf("s%d", i%10), MatchScore: i}},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := m.QueryActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Matches, 10)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	l, err := m.Upsert(ctx, Listing{URL: jobURL, Skills: []string{"go"}, Matches: []Match{{SubmissionID: "s1", MatchScore: 10}}})
	require.NoError(t, err)
	l.Skills[0] = "rust"
	l.Matches[0].MatchScore = 99

	all, err := m.QueryActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, all[0].Skills)
	assert.Equal(t, 10, all[0].Matches[0].MatchScore)
}

func TestMemorySweeperStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(nil, WithClock(clock.Now), WithTTL(time.Minute))
	_, err := m.Upsert(context.Background(), Listing{URL: jobURL})
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.items) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
