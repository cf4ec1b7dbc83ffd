// Package invalidate keeps the geo index and the entity cache in step with
// committed store writes.
package invalidate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/cache"
	"github.com/geosocial/proximity/internal/geoindex"
	"github.com/geosocial/proximity/internal/metrics"
	"github.com/geosocial/proximity/internal/model"
)

const (
	eventCreated = "created"
	eventMoved   = "moved"
	eventUpdated = "updated"
	eventDeleted = "deleted"
)

// Invalidator is called synchronously after each successful store commit.
// Hooks never return errors; failures are logged and counted, and the entry
// stays stale until its TTL runs out or the reindex worker repairs it.
type Invalidator struct {
	index geoindex.Index
	cache *cache.EntityCache
	ttls  cache.TTLs
	log   zerolog.Logger
	now   func() time.Time
}

func New(index geoindex.Index, c *cache.EntityCache, ttls cache.TTLs, log zerolog.Logger) *Invalidator {
	return &Invalidator{index: index, cache: c, ttls: ttls, log: log, now: time.Now}
}

// WithClock replaces the time source used for discoverability checks.
func (iv *Invalidator) WithClock(now func() time.Time) *Invalidator {
	iv.now = now
	return iv
}

// OnEntityCreated indexes e and stores its snapshot.
func (iv *Invalidator) OnEntityCreated(ctx context.Context, e model.Entity) {
	iv.record(e.EntityKind(), eventCreated, e.EntityID(), iv.place(ctx, e), iv.snapshot(ctx, e))
}

// OnEntityMoved re-indexes e at its new position and refreshes its snapshot.
// Cached result sets are left to expire; their ids are re-filtered on read.
func (iv *Invalidator) OnEntityMoved(ctx context.Context, e model.Entity) {
	iv.record(e.EntityKind(), eventMoved, e.EntityID(), iv.place(ctx, e), iv.snapshot(ctx, e))
}

// OnEntityUpdated refreshes the snapshot of e. The index is untouched.
func (iv *Invalidator) OnEntityUpdated(ctx context.Context, e model.Entity) {
	iv.record(e.EntityKind(), eventUpdated, e.EntityID(), iv.snapshot(ctx, e))
}

// OnEntityDeleted drops id from the index and the cache.
func (iv *Invalidator) OnEntityDeleted(ctx context.Context, kind model.Kind, id string) {
	iv.record(kind, eventDeleted, id, iv.remove(ctx, kind, id), iv.cache.Delete(ctx, kind, id))
}

// place upserts a discoverable entity and removes anything else.
func (iv *Invalidator) place(ctx context.Context, e model.Entity) error {
	c, ok := e.Position()
	if !ok || !e.Discoverable(iv.now()) {
		return iv.remove(ctx, e.EntityKind(), e.EntityID())
	}
	err := iv.index.Upsert(ctx, e.EntityKind(), e.EntityID(), c)
	if errors.Is(err, geoindex.ErrUnindexable) {
		// found through the store scan instead
		return iv.remove(ctx, e.EntityKind(), e.EntityID())
	}
	if err != nil {
		metrics.IndexErrorsTotal.WithLabelValues(string(e.EntityKind()), "upsert").Inc()
	}
	return err
}

func (iv *Invalidator) remove(ctx context.Context, kind model.Kind, id string) error {
	err := iv.index.Remove(ctx, kind, id)
	if err != nil {
		metrics.IndexErrorsTotal.WithLabelValues(string(kind), "remove").Inc()
	}
	return err
}

func (iv *Invalidator) snapshot(ctx context.Context, e model.Entity) error {
	return iv.cache.Set(ctx, e.EntityKind(), e.EntityID(), e, iv.ttls.For(e.EntityKind()))
}

func (iv *Invalidator) record(kind model.Kind, event, id string, errs ...error) {
	err := errors.Join(errs...)
	if err == nil {
		metrics.InvalidationsTotal.WithLabelValues(string(kind), event, "ok").Inc()
		iv.log.Debug().Str("kind", string(kind)).Str("event", event).Str("id", id).Msg("invalidated")
		return
	}
	metrics.InvalidationsTotal.WithLabelValues(string(kind), event, "error").Inc()
	iv.log.Error().Err(err).Str("kind", string(kind)).Str("event", event).Str("id", id).
		Msg("index/cache invalidation failed; entry stays stale until ttl or reindex")
}
