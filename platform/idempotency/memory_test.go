package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_MarkAndCheck(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkProcessed(ctx, "evt-1", time.Hour))
	require.NoError(t, s.MarkProcessed(ctx, "evt-1", time.Hour))

	ok, err = s.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsProcessed(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Expires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.MarkProcessed(ctx, "evt-1", time.Minute))

	now = now.Add(30 * time.Second)
	ok, err := s.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, err = s.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// протухшие записи чистятся при следующей отметке
	require.NoError(t, s.MarkProcessed(ctx, "evt-2", time.Minute))
	assert.Len(t, s.events, 1)
}

func TestMemoryStore_SweepIsAmortized(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.MarkProcessed(ctx, "evt-1", time.Second))

	// до следующего окна очистки протухшая запись остаётся в map
	now = now.Add(10 * time.Second)
	require.NoError(t, s.MarkProcessed(ctx, "evt-2", time.Hour))
	assert.Len(t, s.events, 2)

	// но наружу она уже не видна
	ok, err := s.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkProcessed(ctx, "evt-3", time.Second))
	now = now.Add(sweepInterval)
	require.NoError(t, s.MarkProcessed(ctx, "evt-4", time.Hour))
	assert.Len(t, s.events, 2)
	assert.Contains(t, s.events, "evt-2")
	assert.Contains(t, s.events, "evt-4")
}
