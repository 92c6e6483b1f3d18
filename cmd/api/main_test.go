package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eskomcalendar/calendarapi/internal/config"
	"github.com/eskomcalendar/calendarapi/internal/feedcache"
)

func TestFeedCacheSubsystem_Disabled(t *testing.T) {
	sub := feedCacheSubsystem(&config.Config{CacheBackend: feedcache.BackendNone}, nil)

	assert.Equal(t, "feed-cache", sub.Name)
	assert.Equal(t, feedcache.BackendNone, sub.Detail)
	assert.Nil(t, sub.Check)
	assert.False(t, sub.Critical)
}

func TestFeedCacheSubsystem_ChecksBackend(t *testing.T) {
	cache := feedcache.NewMemory(nil)
	t.Cleanup(func() { _ = cache.Close() })
	require.NoError(t, cache.Set(context.Background(), feedcache.OutagesKey(), []byte("area_name\n"), time.Minute))

	sub := feedCacheSubsystem(&config.Config{CacheBackend: feedcache.BackendMemory}, cache)

	assert.Equal(t, feedcache.BackendMemory, sub.Detail)
	require.NotNil(t, sub.Check)
	assert.NoError(t, sub.Check(context.Background()))
}
