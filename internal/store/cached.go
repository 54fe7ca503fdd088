package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
)

var _ observations.DayStore = (*CachedStore)(nil)

// ReadCacheConfig holds the sturdyc settings for the read-through cache.
type ReadCacheConfig struct {
	// Capacity is the maximum number of days held in memory.
	Capacity int
	// NumShards determines the number of cache shards.
	NumShards int
	// TTL is how long a read payload is served from memory.
	TTL time.Duration
	// EvictionPercentage of entries dropped when the cache is full (1-100).
	EvictionPercentage int
}

// DefaultReadCacheConfig returns settings suitable for a few years of days.
func DefaultReadCacheConfig() ReadCacheConfig {
	return ReadCacheConfig{
		Capacity:           1000,
		NumShards:          16,
		TTL:                10 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration before it is handed to sturdyc.
func (c ReadCacheConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.New("read cache capacity must be greater than 0")
	case c.NumShards <= 0:
		return errors.New("read cache shards must be greater than 0")
	case c.TTL <= 0:
		return errors.New("read cache ttl must be greater than 0")
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return errors.New("read cache eviction percentage must be between 1 and 100")
	}
	return nil
}

// CachedStore puts an in-memory read-through cache in front of a FileStore.
// Reads of the same day from HTTP handlers are served from memory; writes go
// to disk first and then drop the cached entry.
type CachedStore struct {
	files  *FileStore
	client *sturdyc.Client[json.RawMessage]
}

// NewCachedStore wraps files with a sturdyc client built from cfg.
func NewCachedStore(files *FileStore, cfg ReadCacheConfig) (*CachedStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[json.RawMessage](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
	)
	return &CachedStore{files: files, client: client}, nil
}

func (s *CachedStore) Exists(date observations.Date) bool {
	return s.files.Exists(date)
}

// Read serves date from memory when possible. Missing days are never cached,
// so a day written later by the reconciler becomes visible immediately.
func (s *CachedStore) Read(date observations.Date) (json.RawMessage, error) {
	if !s.files.Exists(date) {
		return nil, fmt.Errorf("%w: %s", observations.ErrDayNotFound, date)
	}
	return s.client.GetOrFetch(context.Background(), date.String(), func(context.Context) (json.RawMessage, error) {
		return s.files.Read(date)
	})
}

// Write persists payload and invalidates the cached copy of date.
func (s *CachedStore) Write(date observations.Date, payload json.RawMessage) error {
	if err := s.files.Write(date, payload); err != nil {
		return err
	}
	s.client.Delete(date.String())
	return nil
}

func (s *CachedStore) ScanDateRange() (observations.DateRange, bool, error) {
	return s.files.ScanDateRange()
}

func (s *CachedStore) Dates() ([]observations.Date, error) {
	return s.files.Dates()
}

// Size returns the number of days currently held in memory.
func (s *CachedStore) Size() int {
	return s.client.Size()
}
