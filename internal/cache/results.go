package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/geosocial/proximity/internal/model"
)

// BucketCenter rounds a query point to two decimal degrees.
func BucketCenter(lat, lon float64) (float64, float64) {
	return round2(lat), round2(lon)
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // drop negative zero so keys stay stable
	}
	return r
}

// NearbyKey builds nearby:<kind>:<lat2dp>:<lon2dp>:<radius>:<limit>.
func NearbyKey(kind model.Kind, lat, lon, radiusMeters float64, limit int) string {
	bLat, bLon := BucketCenter(lat, lon)
	return fmt.Sprintf("nearby:%s:%.2f:%.2f:%s:%d", kind, bLat, bLon,
		strconv.FormatFloat(radiusMeters, 'f', -1, 64), limit)
}

// ResultCache stores candidate id lists of nearby queries. Entries are only
// candidates: callers re-read and re-filter every id, so a cached list can be
// stale but never resurrects a deleted entity.
type ResultCache struct {
	backend Backend
	ttl     time.Duration
}

func NewResultCache(backend Backend, ttl time.Duration) *ResultCache {
	return &ResultCache{backend: backend, ttl: ttl}
}

// Get returns the candidate ids stored under key.
func (r *ResultCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	data, err := r.backend.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, model.IndexUnavailable("results.get", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, nil
	}
	return ids, len(ids) > 0, nil
}

// Put stores ids under key. Empty lists are not cached.
func (r *ResultCache) Put(ctx context.Context, key string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return model.IndexUnavailable("results.put", r.backend.Set(ctx, key, data, r.ttl))
}
