package feedcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eskomcalendar/calendarapi/internal/calendar"
)

// LookupRecorder observes cache hits and misses.
type LookupRecorder interface {
	RecordCache(feed string, hit bool)
}

// SourceConfig holds configuration for a CachingSource.
type SourceConfig struct {
	// Source is the feed source being decorated.
	Source calendar.Source

	Cache Cache

	// TTL bounds how stale a served feed can be.
	TTL time.Duration

	// Recorder receives hit/miss observations. Optional.
	Recorder LookupRecorder

	Logger zerolog.Logger
}

// CachingSource serves feeds from a Cache and falls through to the wrapped
// Source on a miss. Cache failures are logged and bypassed.
type CachingSource struct {
	next     calendar.Source
	cache    Cache
	ttl      time.Duration
	recorder LookupRecorder
	logger   zerolog.Logger
}

var _ calendar.Source = (*CachingSource)(nil)

// Wrap returns cfg.Source unchanged when there is no cache or the TTL is not
// positive, and a CachingSource otherwise.
func Wrap(cfg SourceConfig) calendar.Source {
	if cfg.Cache == nil || cfg.TTL <= 0 {
		return cfg.Source
	}
	return NewCachingSource(cfg)
}

// NewCachingSource creates a caching decorator.
func NewCachingSource(cfg SourceConfig) *CachingSource {
	return &CachingSource{
		next:     cfg.Source,
		cache:    cfg.Cache,
		ttl:      cfg.TTL,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
}

// FetchOutageFeed implements calendar.Source.
func (s *CachingSource) FetchOutageFeed(ctx context.Context) ([]byte, error) {
	return s.get(ctx, calendar.FeedOutages, OutagesKey(), s.next.FetchOutageFeed)
}

// FetchScheduleFeed implements calendar.Source.
func (s *CachingSource) FetchScheduleFeed(ctx context.Context, area string) ([]byte, error) {
	return s.get(ctx, calendar.FeedSchedules, ScheduleKey(area), func(ctx context.Context) ([]byte, error) {
		return s.next.FetchScheduleFeed(ctx, area)
	})
}

func (s *CachingSource) get(ctx context.Context, feed, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("feed cache read failed")
	}
	s.record(feed, ok)
	if ok {
		return data, nil
	}

	data, err = fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("feed cache write failed")
	}
	return data, nil
}

func (s *CachingSource) record(feed string, hit bool) {
	if s.recorder != nil {
		s.recorder.RecordCache(feed, hit)
	}
}
