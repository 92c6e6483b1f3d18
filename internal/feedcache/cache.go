// Package feedcache keeps recently downloaded feeds for a bounded time.
//
// Caching is off unless a positive TTL is configured; with it off every
// request downloads fresh feeds.
package feedcache

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
)

// Cache stores feed bodies by key.
type Cache interface {
	// Get returns the value for key. ok is false when the key is missing or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend  string
	RedisURL string
	BoltPath string
}

// New opens the cache named by opts.Backend. BackendNone and "" return a nil
// Cache and no error.
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemory(nil), nil
	case BackendRedis:
		c, err := NewRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendBolt:
		c, err := OpenBolt(opts.BoltPath, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown feed cache backend %q", opts.Backend)
	}
}

// OutagesKey is the cache key of the outage feed.
func OutagesKey() string {
	return "outages"
}

// ScheduleKey is the cache key of one area's schedule feed.
func ScheduleKey(area string) string {
	return "schedules/" + area
}
