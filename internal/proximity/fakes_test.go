package proximity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/cache"
	"github.com/geosocial/proximity/internal/geoindex"
	"github.com/geosocial/proximity/internal/model"
)

// fakeSource is an in-memory store.Source with failure injection.
type fakeSource[T model.Entity] struct {
	mu     sync.Mutex
	rows   map[string]T
	getErr error
	boxErr error
	gets   atomic.Int64
	scans  atomic.Int64
}

func newFakeSource[T model.Entity](rows ...T) *fakeSource[T] {
	f := &fakeSource[T]{rows: make(map[string]T)}
	for _, r := range rows {
		f.rows[r.EntityID()] = r
	}
	return f
}

func (f *fakeSource[T]) put(e T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[e.EntityID()] = e
}

func (f *fakeSource[T]) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
}

func (f *fakeSource[T]) Get(_ context.Context, id string) (T, error) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	if f.getErr != nil {
		return zero, f.getErr
	}
	e, ok := f.rows[id]
	if !ok {
		return zero, model.ErrNotFound
	}
	return e, nil
}

func (f *fakeSource[T]) WithinBox(_ context.Context, box orb.Bound, limit int) ([]T, error) {
	f.scans.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boxErr != nil {
		return nil, f.boxErr
	}
	var out []T
	for _, e := range f.rows {
		c, ok := e.Position()
		if ok && box.Contains(orb.Point{c.Longitude, c.Latitude}) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource[T]) Scan(context.Context, string, int) ([]T, error) {
	return nil, errors.New("not used")
}

// failingIndex rejects every operation.
type failingIndex struct{}

var errIndexDown = errors.New("index down")

func (failingIndex) Upsert(context.Context, model.Kind, string, model.Coordinate) error {
	return errIndexDown
}
func (failingIndex) Remove(context.Context, model.Kind, string) error { return errIndexDown }
func (failingIndex) QueryRadius(context.Context, model.Kind, model.Coordinate, float64, int) ([]geoindex.Candidate, error) {
	return nil, model.IndexUnavailable("query", errIndexDown)
}
func (failingIndex) Members(context.Context, model.Kind) ([]string, error) { return nil, errIndexDown }

type env struct {
	index   *geoindex.MemoryIndex
	backend *cache.MemoryBackend
	cache   *cache.EntityCache
	opts    Options
}

func newEnv(withResults bool) *env {
	e := &env{
		index:   geoindex.NewMemoryIndex(),
		backend: cache.NewMemoryBackend(),
	}
	e.cache = cache.NewEntityCache(e.backend, zerolog.Nop(), model.KindGroup)
	e.opts = Options{
		Index:  e.index,
		Cache:  e.cache,
		TTLs:   cache.DefaultTTLs(),
		Limits: DefaultLimits(),
		Log:    zerolog.Nop(),
	}
	if withResults {
		e.opts.Results = cache.NewResultCache(e.backend, time.Minute)
	}
	return e
}

// indexAll writes every row of src into the index the way the invalidator would.
func (e *env) indexAll(kind model.Kind, entities ...model.Entity) {
	for _, ent := range entities {
		if c, ok := ent.Position(); ok {
			_ = e.index.Upsert(context.Background(), kind, ent.EntityID(), c)
		}
	}
}

func user(id string, lat, lon float64) *model.User {
	return &model.User{UserID: id, Nickname: id, Location: &model.Coordinate{Latitude: lat, Longitude: lon}}
}

func group(id string, lat, lon float64) *model.Group {
	return &model.Group{GroupID: id, Name: id, Location: model.Coordinate{Latitude: lat, Longitude: lon}, MemberCount: 1}
}

// metersNorth is the latitude delta of d meters along a meridian.
func metersNorth(d float64) float64 { return d / 111194.92664455873 }
