package feedcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"
)

var bucketFeeds = []byte("feeds")

// Bolt is a Cache persisted to a local bbolt file. The CLI uses it to keep
// feeds between invocations.
type Bolt struct {
	db    *bolt.DB
	clock clockwork.Clock
}

var _ Cache = (*Bolt)(nil)

// OpenBolt opens (or creates) the cache file at path. Parent directories are
// created automatically. A nil clock uses the real clock.
func OpenBolt(path string, clock clockwork.Clock) (*Bolt, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt cache path is empty")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFeeds)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketFeeds, err)
	}

	return &Bolt{db: db, clock: clock}, nil
}

// Path returns the filesystem path of the cache file.
func (b *Bolt) Path() string {
	return b.db.Path()
}

// Get implements Cache. Expired entries are reported missing and stay on disk
// until Purge or an overwriting Set.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketFeeds).Get([]byte(key))
		if raw == nil {
			return nil
		}
		expiresAt, body, ok := decodeBoltEntry(raw)
		if !ok || !b.clock.Now().Before(expiresAt) {
			return nil
		}
		value = append([]byte{}, body...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bolt get %s: %w", key, err)
	}
	return value, found, nil
}

// Set implements Cache.
func (b *Bolt) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	entry := encodeBoltEntry(b.clock.Now().Add(ttl), value)
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFeeds).Put([]byte(key), entry)
	})
	if err != nil {
		return fmt.Errorf("bolt set %s: %w", key, err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (b *Bolt) Purge() (int, error) {
	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketFeeds)
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			expiresAt, _, ok := decodeBoltEntry(v)
			if !ok || !b.clock.Now().Before(expiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close implements Cache.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// An entry is the expiry in Unix nanoseconds (8 bytes, big endian) followed by the body.
func encodeBoltEntry(expiresAt time.Time, value []byte) []byte {
	entry := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(entry, uint64(expiresAt.UnixNano()))
	copy(entry[8:], value)
	return entry
}

func decodeBoltEntry(raw []byte) (time.Time, []byte, bool) {
	if len(raw) < 8 {
		return time.Time{}, nil, false
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	return time.Unix(0, nanos), raw[8:], true
}
