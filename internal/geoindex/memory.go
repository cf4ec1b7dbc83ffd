package geoindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/geosocial/proximity/internal/geo"
	"github.com/geosocial/proximity/internal/model"
)

// MemoryIndex is an in-process Index for the local build target and tests.
// It enforces the same latitude band as RedisIndex.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[model.Kind]map[string]model.Coordinate
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[model.Kind]map[string]model.Coordinate)}
}

func (m *MemoryIndex) Upsert(_ context.Context, kind model.Kind, id string, c model.Coordinate) error {
	if !Indexable(c.Latitude) {
		return fmt.Errorf("upsert %s %s: %w", kind, id, ErrUnindexable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.points[kind]
	if !ok {
		set = make(map[string]model.Coordinate)
		m.points[kind] = set
	}
	set[id] = c
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, kind model.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points[kind], id)
	return nil
}

func (m *MemoryIndex) QueryRadius(_ context.Context, kind model.Kind, center model.Coordinate, radiusMeters float64, limit int) ([]Candidate, error) {
	if !Indexable(center.Latitude) {
		return nil, model.IndexUnavailable("geoindex.query", ErrUnindexable)
	}
	m.mu.RLock()
	out := make([]Candidate, 0)
	for id, c := range m.points[kind] {
		d := geo.Distance(center.Latitude, center.Longitude, c.Latitude, c.Longitude)
		if d <= radiusMeters {
			out = append(out, Candidate{ID: id, DistanceMeters: d})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters == out[j].DistanceMeters {
			return out[i].ID < out[j].ID
		}
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryIndex) Members(_ context.Context, kind model.Kind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.points[kind]))
	for id := range m.points[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Position returns the indexed coordinate of id, mainly for tests.
func (m *MemoryIndex) Position(kind model.Kind, id string) (model.Coordinate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.points[kind][id]
	return c, ok
}

// HealthPing implements health.HealthPinger.
func (m *MemoryIndex) HealthPing(context.Context) error { return nil }
