// Package proximity answers "what is near this point" for each entity kind.
//
// Candidates come from the result-set cache or the geo index. Every candidate
// is re-read through the entity cache with the store as loader, so a stale
// index or cache entry can hide nothing and resurrect nothing: deleted ids are
// dropped and distances come from the authoritative coordinates. When the
// index is unreachable or empty the store is scanned directly.
package proximity

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/geosocial/proximity/internal/cache"
	"github.com/geosocial/proximity/internal/geo"
	"github.com/geosocial/proximity/internal/geoindex"
	"github.com/geosocial/proximity/internal/metrics"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
)

// bucketSlackMeters covers the offset between a query point and the center of
// its two-decimal result-cache bucket (half a bucket diagonal is under 790 m).
const bucketSlackMeters = 800

// Options carries the collaborators shared by every Searcher.
type Options struct {
	Index geoindex.Index
	Cache *cache.EntityCache
	// Results is optional; nil disables result-set caching.
	Results *cache.ResultCache
	TTLs    cache.TTLs
	Limits  Limits
	Log     zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Searcher finds entities of one kind near a point.
type Searcher[T model.Entity] struct {
	kind    model.Kind
	source  store.Source[T]
	index   geoindex.Index
	cache   *cache.EntityCache
	results *cache.ResultCache
	ttl     time.Duration
	limits  Limits
	log     zerolog.Logger
	now     func() time.Time
}

// NewSearcher builds the searcher of kind over source.
func NewSearcher[T model.Entity](kind model.Kind, source store.Source[T], opts Options) *Searcher[T] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Searcher[T]{
		kind:    kind,
		source:  source,
		index:   opts.Index,
		cache:   opts.Cache,
		results: opts.Results,
		ttl:     opts.TTLs.For(kind),
		limits:  opts.Limits,
		log:     opts.Log.With().Str("kind", string(kind)).Logger(),
		now:     now,
	}
}

// Kind reports the entity kind this searcher serves.
func (s *Searcher[T]) Kind() model.Kind { return s.kind }

// FindNearby returns up to q.Limit entities within q.RadiusMeters of the query
// point, nearest first with ties broken by id. An empty result is not an error.
// Invalid input yields a model.ValidationError before any I/O; an unreachable
// store yields an error matching model.ErrStoreUnavailable.
func (s *Searcher[T]) FindNearby(ctx context.Context, q Query) ([]model.Result[T], error) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(string(s.kind)).Observe(time.Since(start).Seconds())
	}()

	q, err := s.limits.normalize(q)
	if err != nil {
		metrics.SearchFailuresTotal.WithLabelValues(string(s.kind), "validation").Inc()
		return nil, err
	}
	center := model.Coordinate{Latitude: q.Latitude, Longitude: q.Longitude}

	path := metrics.PathIndex
	ids, indexOK := s.candidates(ctx, q, &path)

	var hits []model.Result[T]
	if len(ids) > 0 {
		entities, err := s.hydrate(ctx, ids)
		if err != nil {
			metrics.SearchFailuresTotal.WithLabelValues(string(s.kind), "store_unavailable").Inc()
			return nil, err
		}
		if len(entities) > 0 {
			hits = s.rank(entities, center, q.RadiusMeters)
			metrics.SearchesTotal.WithLabelValues(string(s.kind), path).Inc()
			return truncate(hits, q.Limit), nil
		}
	}

	entities, err := s.scanStore(ctx, q)
	if err != nil {
		metrics.SearchFailuresTotal.WithLabelValues(string(s.kind), "store_unavailable").Inc()
		return nil, err
	}
	hits = s.rank(entities, center, q.RadiusMeters)
	if indexOK && len(hits) > 0 {
		s.backfill(ctx, hits)
	}
	metrics.SearchesTotal.WithLabelValues(string(s.kind), metrics.PathFallback).Inc()
	return truncate(hits, q.Limit), nil
}

// candidates returns candidate ids and whether the index answered. Entities
// outside the indexable band are never in the index, so queries whose box
// reaches past it go straight to the store.
func (s *Searcher[T]) candidates(ctx context.Context, q Query, path *string) ([]string, bool) {
	if s.index == nil {
		return nil, false
	}
	latRange, _ := geo.Ranges(q.Latitude, q.RadiusMeters)
	if !geoindex.Indexable(q.Latitude-latRange) || !geoindex.Indexable(q.Latitude+latRange) {
		return nil, false
	}
	fetch := s.limits.fetchCount(q.Limit)

	if s.results != nil {
		key := cache.NearbyKey(s.kind, q.Latitude, q.Longitude, q.RadiusMeters, q.Limit)
		ids, hit, err := s.results.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("result cache read failed")
		}
		if hit {
			*path = metrics.PathResultCache
			return ids, true
		}
		bLat, bLon := cache.BucketCenter(q.Latitude, q.Longitude)
		cands, err := s.queryIndex(ctx, model.Coordinate{Latitude: bLat, Longitude: bLon}, q.RadiusMeters+bucketSlackMeters, fetch)
		if err != nil {
			return nil, false
		}
		// A full page may have cut off ids that are nearer to the real query
		// point than to the bucket center; only complete lists are reusable.
		if len(cands) < fetch {
			ids := candidateIDs(cands)
			if err := s.results.Put(ctx, key, ids); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("result cache write failed")
			}
			return ids, true
		}
	}

	cands, err := s.queryIndex(ctx, model.Coordinate{Latitude: q.Latitude, Longitude: q.Longitude}, q.RadiusMeters, fetch)
	if err != nil {
		return nil, false
	}
	return candidateIDs(cands), true
}

func (s *Searcher[T]) queryIndex(ctx context.Context, center model.Coordinate, radius float64, count int) ([]geoindex.Candidate, error) {
	cands, err := s.index.QueryRadius(ctx, s.kind, center, radius, count)
	if err != nil {
		metrics.IndexErrorsTotal.WithLabelValues(string(s.kind), "query").Inc()
		s.log.Warn().Err(err).Msg("geo index query failed; falling back to store scan")
		return nil, err
	}
	return cands, nil
}

func candidateIDs(cands []geoindex.Candidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return ids
}

// hydrate loads the current snapshot of each id. Missing ids and entities that
// are no longer discoverable are dropped and removed from the index.
func (s *Searcher[T]) hydrate(ctx context.Context, ids []string) ([]T, error) {
	ids = dedupe(ids)
	loaded := make([]T, len(ids))
	ok := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limits.concurrency())
	for i, id := range ids {
		g.Go(func() error {
			e, err := cache.GetOrPopulate(gctx, s.cache, s.kind, id, s.ttl, func(ctx context.Context) (T, error) {
				return s.source.Get(ctx, id)
			})
			if errors.Is(err, model.ErrNotFound) {
				s.evict(ctx, id, true)
				return nil
			}
			if err != nil {
				return model.StoreUnavailable(string(s.kind)+".get", err)
			}
			loaded[i], ok[i] = e, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]T, 0, len(ids))
	for i, e := range loaded {
		if !ok[i] {
			continue
		}
		if !e.Discoverable(now) {
			s.evict(ctx, ids[i], false)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// evict removes a stale id from the index, and its snapshot when the entity is gone.
func (s *Searcher[T]) evict(ctx context.Context, id string, gone bool) {
	if err := s.index.Remove(ctx, s.kind, id); err != nil {
		metrics.IndexErrorsTotal.WithLabelValues(string(s.kind), "remove").Inc()
		s.log.Warn().Err(err).Str("id", id).Msg("stale index entry removal failed")
	}
	if !gone {
		return
	}
	if err := s.cache.Delete(ctx, s.kind, id); err != nil {
		s.log.Warn().Err(err).Str("id", id).Msg("stale snapshot removal failed")
	}
}

// scanStore reads the entities inside the query's bounding boxes.
func (s *Searcher[T]) scanStore(ctx context.Context, q Query) ([]T, error) {
	now := s.now()
	seen := make(map[string]bool)
	var out []T
	for _, b := range geo.BoundingBoxes(q.Latitude, q.Longitude, q.RadiusMeters) {
		rows, err := s.source.WithinBox(ctx, b, s.limits.FallbackScanLimit)
		if err != nil {
			return nil, model.StoreUnavailable(string(s.kind)+".within_box", err)
		}
		for _, e := range rows {
			id := e.EntityID()
			if seen[id] || !e.Discoverable(now) {
				continue
			}
			seen[id] = true
			out = append(out, e)
		}
	}
	return out, nil
}

// rank computes exact distances, drops entities outside the radius and sorts by
// distance then id.
func (s *Searcher[T]) rank(entities []T, center model.Coordinate, radius float64) []model.Result[T] {
	origin := orb.Point{center.Longitude, center.Latitude}
	out := make([]model.Result[T], 0, len(entities))
	for _, e := range entities {
		c, ok := e.Position()
		if !ok {
			continue
		}
		d := geo.PointDistance(origin, orb.Point{c.Longitude, c.Latitude})
		if d > radius {
			continue
		}
		out = append(out, model.Result[T]{ID: e.EntityID(), DistanceMeters: d, Entity: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// backfill writes entities found by the store scan into the index and cache.
func (s *Searcher[T]) backfill(ctx context.Context, hits []model.Result[T]) {
	var failed int
	for _, h := range hits {
		c, _ := h.Entity.Position()
		if err := s.index.Upsert(ctx, s.kind, h.ID, c); err != nil {
			if errors.Is(err, geoindex.ErrUnindexable) {
				continue
			}
			failed++
			continue
		}
		if err := s.cache.Set(ctx, s.kind, h.ID, h.Entity, s.ttl); err != nil {
			failed++
		}
	}
	if failed > 0 {
		metrics.IndexErrorsTotal.WithLabelValues(string(s.kind), "backfill").Add(float64(failed))
		s.log.Warn().Int("failed", failed).Int("total", len(hits)).Msg("index backfill incomplete")
		return
	}
	s.log.Debug().Int("entities", len(hits)).Msg("backfilled cold index from store")
}

func truncate[T model.Entity](hits []model.Result[T], limit int) []model.Result[T] {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
