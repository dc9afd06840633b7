// Package cache provides a TTL-based refresh-behind cache for slow-changing
// reference data. Reads never block on network I/O: a read returns the last
// known value immediately and, when the entry is stale, kicks off an
// asynchronous refresh in the background.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// Entry is the cache's view of a value: the value itself (when one has
// ever been fetched), and the time of the last successful refresh.
type Entry[T any] struct {
	Value     T
	Present   bool
	UpdatedAt time.Time
}

// Fetcher loads a fresh value from the upstream source.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Cache holds one reference-data value with a TTL. Refreshes are
// single-flight: concurrent staleness checks trigger at most one fetch.
// A fetch failure leaves the stale entry untouched and is logged, never
// surfaced to readers.
type Cache[T any] struct {
	key    string
	ttl    time.Duration
	store  interfaces.CacheStore // nil disables persistence
	logger *common.Logger
	now    func() time.Time // injectable clock for testing

	mu         sync.RWMutex
	entry      Entry[T]
	refreshing atomic.Bool
}

// New creates a cache for the given persistence key and TTL. When a
// store is provided, the last persisted record is loaded so the TTL
// spans restarts; load failures degrade to an empty cache.
func New[T any](ctx context.Context, key string, ttl time.Duration, store interfaces.CacheStore, logger *common.Logger) *Cache[T] {
	c := &Cache[T]{
		key:    key,
		ttl:    ttl,
		store:  store,
		logger: logger,
		now:    time.Now,
	}

	if store != nil {
		record, err := store.GetRecord(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Failed to load persisted cache record")
		} else if record != nil {
			var value T
			if err := json.Unmarshal(record.Value, &value); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("Failed to decode persisted cache record")
			} else {
				c.entry = Entry[T]{Value: value, Present: true, UpdatedAt: record.UpdateTimestamp}
			}
		}
	}

	return c
}

// Get returns the last known entry immediately. It never blocks on I/O.
func (c *Cache[T]) Get() Entry[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

// Stale reports whether the entry is absent or its age has reached the TTL.
func (c *Cache[T]) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.entry.Present || c.now().Sub(c.entry.UpdatedAt) >= c.ttl
}

// EnsureFresh triggers an asynchronous refresh when the entry is stale.
// It returns immediately; the caller keeps reading the current value
// until the refresh lands.
func (c *Cache[T]) EnsureFresh(ctx context.Context, fetch Fetcher[T]) {
	if !c.Stale() {
		return
	}

	// Single-flight: only one refresh per cache at a time.
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	// The refresh must outlive the triggering request.
	go c.refresh(context.WithoutCancel(ctx), fetch)
}

// GetFresh combines Get and EnsureFresh: every read also checks staleness.
func (c *Cache[T]) GetFresh(ctx context.Context, fetch Fetcher[T]) Entry[T] {
	c.EnsureFresh(ctx, fetch)
	return c.Get()
}

func (c *Cache[T]) refresh(ctx context.Context, fetch Fetcher[T]) {
	defer c.refreshing.Store(false)

	value, err := fetch(ctx)
	if err != nil {
		// Keep the stale entry; background-refresh failures are non-fatal.
		c.logger.Warn().Err(err).Str("key", c.key).Msg("Cache refresh failed, keeping stale value")
		return
	}

	updatedAt := c.now()

	c.mu.Lock()
	c.entry = Entry[T]{Value: value, Present: true, UpdatedAt: updatedAt}
	c.mu.Unlock()

	c.persist(ctx, value, updatedAt)

	c.logger.Debug().Str("key", c.key).Msg("Cache refreshed")
}

func (c *Cache[T]) persist(ctx context.Context, value T, updatedAt time.Time) {
	if c.store == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.key).Msg("Failed to encode cache record")
		return
	}

	record := &models.CacheRecord{
		Key:             c.key,
		Value:           raw,
		UpdateTimestamp: updatedAt,
	}
	if err := c.store.PutRecord(ctx, record); err != nil {
		c.logger.Warn().Err(err).Str("key", c.key).Msg("Failed to persist cache record")
	}
}
