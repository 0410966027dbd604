package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitForHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, WaitFor(ctx, time.Hour), context.Canceled)
}

func TestWaitForCompletes(t *testing.T) {
	start := time.Now()
	assert.NoError(t, WaitFor(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.NoError(t, WaitFor(context.Background(), 0))
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	limit := time.Second

	assert.Equal(t, base, Backoff(1, base, limit))
	assert.Equal(t, 200*time.Millisecond, Backoff(2, base, limit))
	assert.Equal(t, 400*time.Millisecond, Backoff(3, base, limit))
	assert.Equal(t, limit, Backoff(10, base, limit))
	assert.Equal(t, time.Duration(0), Backoff(3, 0, limit))
}
