package proximity

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/geosocial/proximity/internal/cache"
	"github.com/geosocial/proximity/internal/model"
)

type mode struct {
	name    string
	index   bool
	results bool
}

var modes = []mode{
	{name: "index", index: true},
	{name: "result_cache", index: true, results: true},
	{name: "store_only"},
}

func (m mode) searcher(src *fakeSource[*model.User]) (*Searcher[*model.User], *env) {
	e := newEnv(m.results)
	opts := e.opts
	if !m.index {
		opts.Index = nil
	}
	return NewSearcher[*model.User](model.KindUser, src, opts), e
}

func ids[T model.Entity](res []model.Result[T]) []string {
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.ID
	}
	return out
}

func TestFindNearby_Scenario(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			ctx := context.Background()
			a := user("A", 40.00, -73.00)
			b := user("B", 41.00, -73.00)
			src := newFakeSource(a, b)
			s, e := m.searcher(src)
			e.indexAll(model.KindUser, a, b)

			q := Query{Latitude: 40.001, Longitude: -73.001, RadiusMeters: 500, Limit: 10}
			res, err := s.FindNearby(ctx, q)
			if err != nil {
				t.Fatalf("FindNearby: %v", err)
			}
			if len(res) != 1 || res[0].ID != "A" {
				t.Fatalf("want [A], got %v", ids(res))
			}
			if math.Abs(res[0].DistanceMeters-140) > 5 {
				t.Fatalf("distance = %.1f, want about 140", res[0].DistanceMeters)
			}
			if res[0].Entity.Nickname != "A" {
				t.Fatalf("entity not hydrated: %+v", res[0].Entity)
			}

			// delete A the way the invalidator does after a store commit
			src.remove("A")
			_ = e.index.Remove(ctx, model.KindUser, "A")
			_ = e.cache.Delete(ctx, model.KindUser, "A")

			res, err = s.FindNearby(ctx, q)
			if err != nil {
				t.Fatalf("FindNearby after delete: %v", err)
			}
			if len(res) != 0 {
				t.Fatalf("want empty after delete, got %v", ids(res))
			}
		})
	}
}

func TestFindNearby_RadiusClamped(t *testing.T) {
	near := user("near", 10+metersNorth(4900), 20)
	far := user("far", 10+metersNorth(5500), 20)
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			src := newFakeSource(near, far)
			s, e := m.searcher(src)
			e.indexAll(model.KindUser, near, far)

			res, err := s.FindNearby(context.Background(), Query{Latitude: 10, Longitude: 20, RadiusMeters: 6000})
			if err != nil {
				t.Fatalf("FindNearby: %v", err)
			}
			if len(res) != 1 || res[0].ID != "near" {
				t.Fatalf("radius 6000 must clamp to 5000: got %v", ids(res))
			}
			if math.Abs(res[0].DistanceMeters-4900) > 1 {
				t.Fatalf("distance = %.2f", res[0].DistanceMeters)
			}
		})
	}
}

func TestFindNearby_OrderingAndTies(t *testing.T) {
	rows := []*model.User{
		user("c", 0, metersNorth(300)),
		user("b", 0, metersNorth(100)),
		user("a", 0, metersNorth(100)),
		user("d", 0, metersNorth(50)),
	}
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			src := newFakeSource(rows...)
			s, e := m.searcher(src)
			for _, r := range rows {
				e.indexAll(model.KindUser, r)
			}
			res, err := s.FindNearby(context.Background(), Query{RadiusMeters: 1000})
			if err != nil {
				t.Fatalf("FindNearby: %v", err)
			}
			got := ids(res)
			want := []string{"d", "a", "b", "c"}
			if len(got) != len(want) {
				t.Fatalf("got %v want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("got %v want %v", got, want)
				}
			}
			for i := 1; i < len(res); i++ {
				if res[i].DistanceMeters < res[i-1].DistanceMeters {
					t.Fatalf("not sorted at %d", i)
				}
			}
		})
	}
}

func TestFindNearby_Limits(t *testing.T) {
	var rows []*model.User
	for i := 0; i < 60; i++ {
		rows = append(rows, user("u"+strconv.Itoa(100+i), metersNorth(float64(10*i)), 0))
	}
	cases := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: 20},
		{limit: -3, want: 20},
		{limit: 7, want: 7},
		{limit: 500, want: 50},
	}
	for _, m := range modes {
		for _, tc := range cases {
			t.Run(m.name+"/"+strconv.Itoa(tc.limit), func(t *testing.T) {
				src := newFakeSource(rows...)
				s, e := m.searcher(src)
				for _, r := range rows {
					e.indexAll(model.KindUser, r)
				}
				res, err := s.FindNearby(context.Background(), Query{RadiusMeters: 5000, Limit: tc.limit})
				if err != nil {
					t.Fatalf("FindNearby: %v", err)
				}
				if len(res) != tc.want {
					t.Fatalf("len = %d, want %d", len(res), tc.want)
				}
				if res[0].ID != "u100" || res[len(res)-1].ID != "u"+strconv.Itoa(100+tc.want-1) {
					t.Fatalf("unexpected window %s..%s", res[0].ID, res[len(res)-1].ID)
				}
			})
		}
	}
}

func TestFindNearby_ValidationBeforeIO(t *testing.T) {
	cases := []Query{
		{Latitude: 91, Longitude: 0},
		{Latitude: -90.5, Longitude: 0},
		{Latitude: 0, Longitude: 181},
		{Latitude: math.NaN(), Longitude: 0},
		{Latitude: 0, Longitude: math.NaN()},
		{Latitude: 0, Longitude: 0, RadiusMeters: -1},
		{Latitude: 0, Longitude: 0, RadiusMeters: math.NaN()},
	}
	src := newFakeSource(user("a", 0, 0))
	s, _ := modes[1].searcher(src)
	for _, q := range cases {
		_, err := s.FindNearby(context.Background(), q)
		if !model.IsValidationError(err) {
			t.Fatalf("query %+v: want validation error, got %v", q, err)
		}
	}
	if src.gets.Load() != 0 || src.scans.Load() != 0 {
		t.Fatalf("validation must happen before I/O: gets=%d scans=%d", src.gets.Load(), src.scans.Load())
	}
}

func TestFindNearby_StoreFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	q := Query{Latitude: 1, Longitude: 1, RadiusMeters: 1000}

	t.Run("hydrate", func(t *testing.T) {
		src := newFakeSource(user("a", 1, 1))
		s, e := modes[0].searcher(src)
		e.indexAll(model.KindUser, user("a", 1, 1))
		src.getErr = errors.New("connection refused")

		res, err := s.FindNearby(ctx, q)
		if !errors.Is(err, model.ErrStoreUnavailable) || res != nil {
			t.Fatalf("want ErrStoreUnavailable, got res=%v err=%v", res, err)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		src := newFakeSource(user("a", 1, 1))
		src.boxErr = errors.New("connection refused")
		s, _ := modes[0].searcher(src)

		res, err := s.FindNearby(ctx, q)
		if !errors.Is(err, model.ErrStoreUnavailable) || res != nil {
			t.Fatalf("want ErrStoreUnavailable, got res=%v err=%v", res, err)
		}
	})

	t.Run("index_down_and_store_down", func(t *testing.T) {
		src := newFakeSource(user("a", 1, 1))
		src.boxErr = errors.New("connection refused")
		e := newEnv(true)
		opts := e.opts
		opts.Index = failingIndex{}
		s := NewSearcher[*model.User](model.KindUser, src, opts)

		if _, err := s.FindNearby(ctx, q); !errors.Is(err, model.ErrStoreUnavailable) {
			t.Fatalf("want ErrStoreUnavailable, got %v", err)
		}
	})
}

func TestFindNearby_IndexDownFallsBack(t *testing.T) {
	src := newFakeSource(user("a", 1, 1), user("b", 5, 5))
	e := newEnv(true)
	opts := e.opts
	opts.Index = failingIndex{}
	s := NewSearcher[*model.User](model.KindUser, src, opts)

	res, err := s.FindNearby(context.Background(), Query{Latitude: 1, Longitude: 1.001, RadiusMeters: 1000})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(res) != 1 || res[0].ID != "a" {
		t.Fatalf("got %v", ids(res))
	}
}

func TestFindNearby_BackfillsColdIndex(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(user("a", 1, 1))
	s, e := modes[0].searcher(src)

	res, err := s.FindNearby(ctx, Query{Latitude: 1, Longitude: 1, RadiusMeters: 100})
	if err != nil || len(res) != 1 {
		t.Fatalf("FindNearby: res=%v err=%v", ids(res), err)
	}
	if _, ok := e.index.Position(model.KindUser, "a"); !ok {
		t.Fatal("cold index must be backfilled from the store")
	}
	var snap model.User
	if hit, err := e.cache.Get(ctx, model.KindUser, "a", &snap); err != nil || !hit {
		t.Fatalf("snapshot not backfilled: hit=%v err=%v", hit, err)
	}

	before := src.scans.Load()
	if _, err := s.FindNearby(ctx, Query{Latitude: 1, Longitude: 1, RadiusMeters: 100}); err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if src.scans.Load() != before {
		t.Fatal("warm index must not scan the store")
	}
}

func TestFindNearby_DropsAndEvictsStaleCandidates(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(user("a", 1, 1))
	s, e := modes[0].searcher(src)
	e.indexAll(model.KindUser, user("a", 1, 1), user("ghost", 1, 1.0001))

	res, err := s.FindNearby(ctx, Query{Latitude: 1, Longitude: 1, RadiusMeters: 100})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(res) != 1 || res[0].ID != "a" {
		t.Fatalf("got %v", ids(res))
	}
	if _, ok := e.index.Position(model.KindUser, "ghost"); ok {
		t.Fatal("missing entity must be removed from the index")
	}
}

func TestFindNearby_ExpiredActivities(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	live := &model.Activity{ActivityID: "live", ActivityType: model.ActivityUserCheckin, Location: model.Coordinate{Latitude: 1, Longitude: 1}, ExpiresAt: &future}
	dead := &model.Activity{ActivityID: "dead", ActivityType: model.ActivityUserCheckin, Location: model.Coordinate{Latitude: 1, Longitude: 1.0001}, ExpiresAt: &past}

	src := newFakeSource(live, dead)
	e := newEnv(false)
	e.opts.Now = func() time.Time { return now }
	e.indexAll(model.KindActivity, live, dead)
	s := NewSearcher[*model.Activity](model.KindActivity, src, e.opts)

	res, err := s.FindNearby(ctx, Query{Latitude: 1, Longitude: 1, RadiusMeters: 100})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(res) != 1 || res[0].ID != "live" {
		t.Fatalf("got %v", ids(res))
	}
	if _, ok := e.index.Position(model.KindActivity, "dead"); ok {
		t.Fatal("expired activity must be removed from the index")
	}

	// with only the expired activity left the store scan must agree
	src.remove("live")
	_ = e.index.Remove(ctx, model.KindActivity, "live")
	_ = e.cache.Delete(ctx, model.KindActivity, "live")
	res, err = s.FindNearby(ctx, Query{Latitude: 1, Longitude: 1, RadiusMeters: 100})
	if err != nil || len(res) != 0 {
		t.Fatalf("want empty, got res=%v err=%v", ids(res), err)
	}
}

func TestFindNearby_ResultCache(t *testing.T) {
	ctx := context.Background()
	a := user("a", 48.8566, 2.3522)
	src := newFakeSource(a)
	s, e := modes[1].searcher(src)
	e.indexAll(model.KindUser, a)

	q := Query{Latitude: 48.8567, Longitude: 2.3523, RadiusMeters: 200, Limit: 5}
	if res, err := s.FindNearby(ctx, q); err != nil || len(res) != 1 {
		t.Fatalf("first query: res=%v err=%v", ids(res), err)
	}
	key := cache.NearbyKey(model.KindUser, q.Latitude, q.Longitude, q.RadiusMeters, q.Limit)
	if _, err := e.backend.Get(ctx, key); err != nil {
		t.Fatalf("result set not cached under %s: %v", key, err)
	}

	// served from the cached id list even though the index lost the entry
	_ = e.index.Remove(ctx, model.KindUser, "a")
	if res, err := s.FindNearby(ctx, q); err != nil || len(res) != 1 || res[0].ID != "a" {
		t.Fatalf("cached query: res=%v err=%v", ids(res), err)
	}

	// a cached id list never resurrects a deleted entity
	src.remove("a")
	_ = e.cache.Delete(ctx, model.KindUser, "a")
	if res, err := s.FindNearby(ctx, q); err != nil || len(res) != 0 {
		t.Fatalf("after delete: res=%v err=%v", ids(res), err)
	}
}

func TestFindNearby_EmptyResultsNotCached(t *testing.T) {
	ctx := context.Background()
	s, e := modes[1].searcher(newFakeSource[*model.User]())
	q := Query{Latitude: 3, Longitude: 3, RadiusMeters: 100, Limit: 5}
	if res, err := s.FindNearby(ctx, q); err != nil || len(res) != 0 {
		t.Fatalf("res=%v err=%v", ids(res), err)
	}
	key := cache.NearbyKey(model.KindUser, q.Latitude, q.Longitude, q.RadiusMeters, q.Limit)
	if _, err := e.backend.Get(ctx, key); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("empty result must not be cached, got %v", err)
	}
}

func TestFindNearby_Antimeridian(t *testing.T) {
	west := user("west", 0, 179.999)
	east := user("east", 0, -179.999)
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			src := newFakeSource(west, east)
			s, e := m.searcher(src)
			e.indexAll(model.KindUser, west, east)

			res, err := s.FindNearby(context.Background(), Query{Latitude: 0, Longitude: 179.9995, RadiusMeters: 500})
			if err != nil {
				t.Fatalf("FindNearby: %v", err)
			}
			got := ids(res)
			if len(got) != 2 || got[0] != "west" || got[1] != "east" {
				t.Fatalf("want [west east], got %v", got)
			}
		})
	}
}

func TestFindNearby_PolarQueriesUseStore(t *testing.T) {
	u := user("pole", 89.96, -100)
	src := newFakeSource(u)
	s, e := modes[1].searcher(src)
	e.indexAll(model.KindUser, u) // rejected by the index band

	res, err := s.FindNearby(context.Background(), Query{Latitude: 89.95, Longitude: -120, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(res) != 1 || res[0].ID != "pole" {
		t.Fatalf("got %v", ids(res))
	}
}

// Index-backed answers must equal a plain store scan for any query.
func TestFindNearby_IndexAgreesWithStore(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	var rows []*model.User
	for i := 0; i < 300; i++ {
		rows = append(rows, user("u"+strconv.Itoa(i), 48.85+(r.Float64()-0.5)*0.1, 2.35+(r.Float64()-0.5)*0.1))
	}
	src := newFakeSource(rows...)
	indexed, e := modes[1].searcher(src)
	for _, u := range rows {
		e.indexAll(model.KindUser, u)
	}
	scanned, _ := modes[2].searcher(src)

	ctx := context.Background()
	for i := 0; i < 60; i++ {
		q := Query{
			Latitude:     48.85 + (r.Float64()-0.5)*0.1,
			Longitude:    2.35 + (r.Float64()-0.5)*0.1,
			RadiusMeters: 50 + r.Float64()*4950,
			Limit:        1 + r.IntN(50),
		}
		a, err := indexed.FindNearby(ctx, q)
		if err != nil {
			t.Fatalf("indexed: %v", err)
		}
		b, err := scanned.FindNearby(ctx, q)
		if err != nil {
			t.Fatalf("scanned: %v", err)
		}
		ga, gb := ids(a), ids(b)
		if len(ga) != len(gb) {
			t.Fatalf("query %+v: indexed %d results, scan %d", q, len(ga), len(gb))
		}
		for j := range ga {
			if ga[j] != gb[j] {
				t.Fatalf("query %+v: mismatch at %d: %s vs %s", q, j, ga[j], gb[j])
			}
		}
		for _, res := range a {
			if res.DistanceMeters > q.RadiusMeters {
				t.Fatalf("result %s at %.1f m outside radius %.1f", res.ID, res.DistanceMeters, q.RadiusMeters)
			}
		}
	}
}

func TestFindNearby_Concurrent(t *testing.T) {
	var rows []*model.User
	for i := 0; i < 40; i++ {
		rows = append(rows, user("c"+strconv.Itoa(i), metersNorth(float64(20*i)), 0))
	}
	src := newFakeSource(rows...)
	s, e := modes[1].searcher(src)
	for _, u := range rows {
		e.indexAll(model.KindUser, u)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.FindNearby(context.Background(), Query{RadiusMeters: 2000, Limit: 50})
			if err == nil && len(res) != 40 {
				err = errors.New("short result: " + strconv.Itoa(len(res)))
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestService(t *testing.T) {
	e := newEnv(false)
	g := group("g1", 5, 5)
	e.indexAll(model.KindGroup, g)
	s := &Service{Groups: NewSearcher[*model.Group](model.KindGroup, newFakeSource(g), e.opts)}
	res, err := s.Groups.FindNearby(context.Background(), Query{Latitude: 5, Longitude: 5, RadiusMeters: 10})
	if err != nil || len(res) != 1 || res[0].Entity.MemberCount != 1 {
		t.Fatalf("res=%v err=%v", ids(res), err)
	}
	if s.Groups.Kind() != model.KindGroup {
		t.Fatalf("Kind = %s", s.Groups.Kind())
	}
}
