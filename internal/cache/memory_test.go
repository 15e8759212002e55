package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", &Entry{ReportID: "r-1", Report: testReport()}))

	entry, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "r-1", entry.ReportID)
	assert.Equal(t, 88.5, entry.Report.OverallScore)
	assert.False(t, entry.CachedAt.IsZero())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", &Entry{ReportID: "a"}))
	require.NoError(t, c.Set(ctx, "b", &Entry{ReportID: "b"}))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", &Entry{ReportID: "c"}))

	_, found, _ := c.Get(ctx, "b")
	assert.False(t, found, "b was least recently used")
	_, found, _ = c.Get(ctx, "a")
	assert.True(t, found)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache(10, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &Entry{ReportID: "r-1"}))
	time.Sleep(60 * time.Millisecond)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_DeleteAndClose(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", &Entry{ReportID: "a"}))
	require.NoError(t, c.Set(ctx, "b", &Entry{ReportID: "b"}))
	require.NoError(t, c.Delete(ctx, "a"))

	_, found, _ := c.Get(ctx, "a")
	assert.False(t, found)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Len())
}
