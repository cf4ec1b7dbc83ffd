package geoindex

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/geosocial/proximity/internal/model"
)

// radiusSlack widens Redis radius queries. Redis measures with a 6372797.56 m
// earth radius, slightly larger than ours, so points right at the edge would
// otherwise be cut before the exact filter sees them.
const radiusSlack = 1.001

// RedisIndex stores one GEO sorted set per kind.
type RedisIndex struct {
	client redis.Cmdable
}

// NewRedisIndex wraps a Redis client.
func NewRedisIndex(client redis.Cmdable) *RedisIndex {
	return &RedisIndex{client: client}
}

func (r *RedisIndex) Upsert(ctx context.Context, kind model.Kind, id string, c model.Coordinate) error {
	if !Indexable(c.Latitude) {
		return fmt.Errorf("upsert %s %s: %w", kind, id, ErrUnindexable)
	}
	err := r.client.GeoAdd(ctx, Key(kind), &redis.GeoLocation{
		Name:      id,
		Longitude: c.Longitude,
		Latitude:  c.Latitude,
	}).Err()
	return model.IndexUnavailable("geoindex.upsert", err)
}

func (r *RedisIndex) Remove(ctx context.Context, kind model.Kind, id string) error {
	return model.IndexUnavailable("geoindex.remove", r.client.ZRem(ctx, Key(kind), id).Err())
}

func (r *RedisIndex) QueryRadius(ctx context.Context, kind model.Kind, center model.Coordinate, radiusMeters float64, limit int) ([]Candidate, error) {
	if !Indexable(center.Latitude) {
		return nil, model.IndexUnavailable("geoindex.query", ErrUnindexable)
	}
	res, err := r.client.GeoSearchLocation(ctx, Key(kind), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Longitude,
			Latitude:   center.Latitude,
			Radius:     radiusMeters*radiusSlack + 1,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, model.IndexUnavailable("geoindex.query", err)
	}
	out := make([]Candidate, 0, len(res))
	for _, loc := range res {
		out = append(out, Candidate{ID: loc.Name, DistanceMeters: loc.Dist})
	}
	return out, nil
}

func (r *RedisIndex) Members(ctx context.Context, kind model.Kind) ([]string, error) {
	ids, err := r.client.ZRange(ctx, Key(kind), 0, -1).Result()
	if err != nil {
		return nil, model.IndexUnavailable("geoindex.members", err)
	}
	return ids, nil
}

// HealthPing implements health.HealthPinger.
func (r *RedisIndex) HealthPing(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
