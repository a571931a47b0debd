// Package cache is the time-boxed freshness cache in front of the upstream
// price API. The same Cache runs over a volatile in-process store on the
// proxy and over a durable store on the dashboard.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptodash/internal/metrics"
)

const DefaultTTL = 10 * time.Minute

// Keys for the entries the price service keeps.
const LivePricesKey = "livePrices"

// LiveKey is the key for a single coin's live price. The plain coin id is
// taken by the historical entry.
func LiveKey(coinID string) string {
	return coinID + "_live"
}

type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   *logrus.Entry
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   logrus.WithFields(logrus.Fields{"component": "cache", "store": store.Name()}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) StoreName() string { return c.store.Name() }

// Fresh reports whether an entry stored at storedAt is still inside the TTL.
func (c *Cache) Fresh(storedAt time.Time) bool {
	return c.now().Sub(storedAt) < c.ttl
}

// GetOrFetch returns the cached value for key while it is fresh. Otherwise it
// calls fetch, stores the result and returns it. A failed fetch leaves the
// store untouched and its error is returned as is. A result that encodes to
// null (a nil pointer, slice or map) is returned but not stored.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](ctx, c, key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.log.WithField("key", key).Warnf("value not cacheable: %v", err)
		metrics.CacheWriteErrors.WithLabelValues(c.store.Name()).Inc()
		return v, nil
	}
	if isNull(data) {
		c.log.WithField("key", key).Debug("nil value, not caching")
		return v, nil
	}
	if err := c.store.Set(ctx, key, Entry{Data: data, StoredAt: c.now()}); err != nil {
		c.log.WithField("key", key).Warnf("cache write failed: %v", err)
		metrics.CacheWriteErrors.WithLabelValues(c.store.Name()).Inc()
	}
	return v, nil
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	log := c.log.WithField("key", key)
	name := c.store.Name()

	e, found, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrCorrupt):
		log.Warnf("ignoring corrupt entry: %v", err)
		metrics.CacheLookups.WithLabelValues(name, "corrupt").Inc()
		return zero, false
	case err != nil:
		log.Warnf("cache read failed, treating as miss: %v", err)
		metrics.CacheLookups.WithLabelValues(name, "error").Inc()
		return zero, false
	case !found || !c.Fresh(e.StoredAt):
		metrics.CacheLookups.WithLabelValues(name, "miss").Inc()
		return zero, false
	}

	if isNull(e.Data) {
		log.Warn("ignoring entry with null data")
		metrics.CacheLookups.WithLabelValues(name, "corrupt").Inc()
		return zero, false
	}

	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		log.Warnf("ignoring undecodable entry: %v", err)
		metrics.CacheLookups.WithLabelValues(name, "corrupt").Inc()
		return zero, false
	}

	log.Debugf("serving cached data (age %s)", c.now().Sub(e.StoredAt).Round(time.Second))
	metrics.CacheLookups.WithLabelValues(name, "hit").Inc()
	return v, true
}
