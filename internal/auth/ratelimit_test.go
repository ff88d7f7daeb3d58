package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLoginLimiter_DropsExpiredBuckets(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	l := NewMemoryLoginLimiter(5, time.Minute)
	l.now = func() time.Time { return clock }

	for i := 0; i < 1000; i++ {
		ok, err := l.Allow(ctx, fmt.Sprintf("10.0.0.1|user%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Len(t, l.buckets, 1000)

	clock = clock.Add(time.Minute)
	ok, err := l.Allow(ctx, "10.0.0.1|asha")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, l.buckets, 1, "only the live bucket survives a sweep")
}

func TestMemoryLoginLimiter_SweepKeepsLiveCounters(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	l := NewMemoryLoginLimiter(2, time.Minute)
	l.now = func() time.Time { return clock }

	_, _ = l.Allow(ctx, "old")
	clock = clock.Add(40 * time.Second)
	_, _ = l.Allow(ctx, "busy")
	_, _ = l.Allow(ctx, "busy")

	clock = clock.Add(30 * time.Second)
	ok, _ := l.Allow(ctx, "busy")
	assert.False(t, ok, "busy is still inside its window")
	assert.NotContains(t, l.buckets, "old")
}
