package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/metrics"
	"github.com/geosocial/proximity/internal/model"
)

// TTLs holds the snapshot lifetime per kind and the lifetime of cached nearby result sets.
type TTLs struct {
	User          time.Duration
	Group         time.Duration
	Activity      time.Duration
	NearbyResults time.Duration
}

// DefaultTTLs returns the lifetimes used when nothing is configured.
func DefaultTTLs() TTLs {
	return TTLs{
		User:          time.Hour,
		Group:         10 * time.Minute,
		Activity:      2 * time.Minute,
		NearbyResults: 2 * time.Minute,
	}
}

// For returns the snapshot TTL of kind.
func (t TTLs) For(kind model.Kind) time.Duration {
	switch kind {
	case model.KindUser:
		return t.User
	case model.KindGroup:
		return t.Group
	case model.KindActivity:
		return t.Activity
	}
	return t.NearbyResults
}

// Key returns the snapshot key of an entity.
func Key(kind model.Kind, id string) string { return string(kind) + ":" + id }

// EntityCache stores JSON snapshots of entities under <kind>:<id>.
// It is advisory: a miss never implies the entity does not exist.
type EntityCache struct {
	backend      Backend
	log          zerolog.Logger
	refreshOnHit map[model.Kind]bool
}

// NewEntityCache wraps backend. Snapshots of the given kinds get their TTL
// restarted whenever GetOrPopulate serves them from cache.
func NewEntityCache(backend Backend, log zerolog.Logger, refreshOnHit ...model.Kind) *EntityCache {
	c := &EntityCache{backend: backend, log: log, refreshOnHit: make(map[model.Kind]bool)}
	for _, k := range refreshOnHit {
		c.refreshOnHit[k] = true
	}
	return c
}

// Get decodes the snapshot of (kind, id) into dst. It returns false on a miss.
func (c *EntityCache) Get(ctx context.Context, kind model.Kind, id string, dst any) (bool, error) {
	data, err := c.backend.Get(ctx, Key(kind, id))
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, model.IndexUnavailable("cache.get", err)
	}
	if isNull(data) {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set overwrites the snapshot of (kind, id).
func (c *EntityCache) Set(ctx context.Context, kind model.Kind, id string, snapshot any, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return model.IndexUnavailable("cache.set", c.backend.Set(ctx, Key(kind, id), data, ttl))
}

// Delete drops the snapshot of (kind, id). Deleting an absent key is not an error.
func (c *EntityCache) Delete(ctx context.Context, kind model.Kind, id string) error {
	return model.IndexUnavailable("cache.delete", c.backend.Delete(ctx, Key(kind, id)))
}

func (c *EntityCache) touch(ctx context.Context, kind model.Kind, id string, ttl time.Duration) {
	if !c.refreshOnHit[kind] || ttl <= 0 {
		return
	}
	if err := c.backend.Expire(ctx, Key(kind, id), ttl); err != nil {
		c.log.Debug().Err(err).Str("kind", string(kind)).Str("id", id).Msg("snapshot ttl refresh failed")
	}
}

// Loader reads an entity from the authoritative store.
type Loader[T any] func(ctx context.Context) (T, error)

// GetOrPopulate returns the cached snapshot of (kind, id), or calls load and
// caches its result for ttl. Concurrent misses may each call load; the last
// Set wins. Cache failures degrade to a store read and are only logged.
// Errors from load are returned unchanged.
func GetOrPopulate[T any](ctx context.Context, c *EntityCache, kind model.Kind, id string, ttl time.Duration, load Loader[T]) (T, error) {
	var v T
	hit, err := c.Get(ctx, kind, id, &v)
	switch {
	case err != nil:
		metrics.CacheLookupsTotal.WithLabelValues(string(kind), "error").Inc()
		c.log.Warn().Err(err).Str("kind", string(kind)).Str("id", id).Msg("snapshot read failed; loading from store")
	case hit:
		metrics.CacheLookupsTotal.WithLabelValues(string(kind), "hit").Inc()
		c.touch(ctx, kind, id, ttl)
		return v, nil
	default:
		metrics.CacheLookupsTotal.WithLabelValues(string(kind), "miss").Inc()
	}

	loaded, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(ctx, kind, id, loaded, ttl); err != nil {
		c.log.Warn().Err(err).Str("kind", string(kind)).Str("id", id).Msg("snapshot populate failed")
	}
	return loaded, nil
}

func isNull(data []byte) bool {
	t := bytes.TrimSpace(data)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
