package feedcache_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eskomcalendar/calendarapi/internal/calendar"
	"github.com/eskomcalendar/calendarapi/internal/feedcache"
)

func TestMemory_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := feedcache.NewMemory(clock)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "outages", []byte("csv"), time.Minute))

	got, ok, err := cache.Get(ctx, "outages")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("csv"), got)

	clock.Advance(59 * time.Second)
	_, ok, _ = cache.Get(ctx, "outages")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = cache.Get(ctx, "outages")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestMemory_ZeroTTLIsNotStored(t *testing.T) {
	cache := feedcache.NewMemory(clockwork.NewFakeClock())

	require.NoError(t, cache.Set(context.Background(), "outages", []byte("csv"), 0))

	_, ok, err := cache.Get(context.Background(), "outages")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBolt_RoundTripAndExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	path := filepath.Join(t.TempDir(), "nested", "feeds.db")
	cache, err := feedcache.OpenBolt(path, clock)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	assert.Equal(t, path, cache.Path())

	require.NoError(t, cache.Set(ctx, feedcache.ScheduleKey("city-of-cape-town-area-1"), []byte("day_of_week\n"), time.Hour))
	require.NoError(t, cache.Set(ctx, feedcache.OutagesKey(), []byte{}, 2*time.Hour))

	got, ok, err := cache.Get(ctx, feedcache.ScheduleKey("city-of-cape-town-area-1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("day_of_week\n"), got)

	got, ok, err = cache.Get(ctx, feedcache.OutagesKey())
	require.NoError(t, err)
	assert.True(t, ok, "an empty body is still a hit")
	assert.Empty(t, got)

	clock.Advance(time.Hour)
	_, ok, err = cache.Get(ctx, feedcache.ScheduleKey("city-of-cape-town-area-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := cache.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestBolt_PersistsAcrossOpen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	path := filepath.Join(t.TempDir(), "feeds.db")

	cache, err := feedcache.OpenBolt(path, clock)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), "outages", []byte("csv"), time.Hour))
	require.NoError(t, cache.Close())

	reopened, err := feedcache.OpenBolt(path, clock)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(context.Background(), "outages")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("csv"), got)
}

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()

	cache, err := feedcache.New(ctx, feedcache.Options{Backend: feedcache.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, cache)

	cache, err = feedcache.New(ctx, feedcache.Options{Backend: feedcache.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &feedcache.Memory{}, cache)

	cache, err = feedcache.New(ctx, feedcache.Options{Backend: feedcache.BackendBolt, BoltPath: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &feedcache.Bolt{}, cache)
	require.NoError(t, cache.Close())

	_, err = feedcache.New(ctx, feedcache.Options{Backend: feedcache.BackendRedis})
	assert.Error(t, err)

	_, err = feedcache.New(ctx, feedcache.Options{Backend: "memcached"})
	assert.ErrorContains(t, err, "memcached")
}

func TestRedisHelpers(t *testing.T) {
	assert.Equal(t, "feed:outages", feedcache.RedisKey(feedcache.OutagesKey()))
	assert.Equal(t, "feed:schedules/eskom-direct-1", feedcache.RedisKey(feedcache.ScheduleKey("eskom-direct-1")))

	opts, err := feedcache.ParseRedisURL("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = feedcache.ParseRedisURL("")
	assert.Error(t, err)

	_, err = feedcache.ParseRedisURL("http://localhost")
	assert.Error(t, err)
}

// stubSource counts upstream downloads.
type stubSource struct {
	mu        sync.Mutex
	outages   int
	schedules map[string]int
	err       error
}

func (s *stubSource) FetchOutageFeed(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outages++
	if s.err != nil {
		return nil, s.err
	}
	return []byte("outages"), nil
}

func (s *stubSource) FetchScheduleFeed(_ context.Context, area string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedules == nil {
		s.schedules = make(map[string]int)
	}
	s.schedules[area]++
	if s.err != nil {
		return nil, s.err
	}
	return []byte("schedule " + area), nil
}

type recorder struct {
	hits, misses int
}

func (r *recorder) RecordCache(_ string, hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestCachingSource_ServesWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	upstream := &stubSource{}
	rec := &recorder{}
	source := feedcache.NewCachingSource(feedcache.SourceConfig{
		Source:   upstream,
		Cache:    feedcache.NewMemory(clock),
		TTL:      5 * time.Minute,
		Recorder: rec,
		Logger:   zerolog.Nop(),
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := source.FetchOutageFeed(ctx)
		require.NoError(t, err)
		assert.Equal(t, "outages", string(data))
	}
	assert.Equal(t, 1, upstream.outages)

	_, err := source.FetchScheduleFeed(ctx, "a")
	require.NoError(t, err)
	_, err = source.FetchScheduleFeed(ctx, "b")
	require.NoError(t, err)
	_, err = source.FetchScheduleFeed(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, upstream.schedules)

	clock.Advance(5 * time.Minute)
	_, err = source.FetchOutageFeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.outages)

	assert.Equal(t, 3, rec.hits)
	assert.Equal(t, 4, rec.misses)
}

func TestCachingSource_ErrorsAreNotCached(t *testing.T) {
	upstream := &stubSource{err: &calendar.FetchError{URL: "u", Status: 503}}
	source := feedcache.NewCachingSource(feedcache.SourceConfig{
		Source: upstream,
		Cache:  feedcache.NewMemory(clockwork.NewFakeClock()),
		TTL:    time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := source.FetchOutageFeed(context.Background())
		var fetchErr *calendar.FetchError
		require.ErrorAs(t, err, &fetchErr)
	}
	assert.Equal(t, 2, upstream.outages)
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

func (brokenCache) Close() error { return nil }

func TestCachingSource_BypassesBrokenCache(t *testing.T) {
	upstream := &stubSource{}
	source := feedcache.NewCachingSource(feedcache.SourceConfig{
		Source: upstream,
		Cache:  brokenCache{},
		TTL:    time.Minute,
		Logger: zerolog.Nop(),
	})

	data, err := source.FetchOutageFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "outages", string(data))
}

func TestWrap(t *testing.T) {
	upstream := &stubSource{}

	assert.Same(t, upstream, feedcache.Wrap(feedcache.SourceConfig{Source: upstream}).(*stubSource))
	assert.Same(t, upstream, feedcache.Wrap(feedcache.SourceConfig{Source: upstream, Cache: feedcache.NewMemory(nil)}).(*stubSource))

	wrapped := feedcache.Wrap(feedcache.SourceConfig{Source: upstream, Cache: feedcache.NewMemory(nil), TTL: time.Second})
	assert.IsType(t, &feedcache.CachingSource{}, wrapped)
}
