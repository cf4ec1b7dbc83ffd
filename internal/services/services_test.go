package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/geosocial/proximity/internal/cache"
	"github.com/geosocial/proximity/internal/geoindex"
	"github.com/geosocial/proximity/internal/invalidate"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/proximity"
	"github.com/geosocial/proximity/internal/store/sqlite"
)

type harness struct {
	users      *UserService
	groups     *GroupService
	activities *ActivityService
	index      *geoindex.MemoryIndex
	cache      *cache.EntityCache
	nearby     *proximity.Service
}

func newHarness(t *testing.T, activityLifetime time.Duration) *harness {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.NewWithDB(db)
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	log := zerolog.Nop()
	idx := geoindex.NewMemoryIndex()
	c := cache.NewEntityCache(cache.NewMemoryBackend(), log, model.KindGroup)
	inv := invalidate.New(idx, c, cache.DefaultTTLs(), log)
	hasher := BcryptHasher{Cost: bcrypt.MinCost}
	acts := NewActivityService(st, inv, activityLifetime)
	return &harness{
		users:      NewUserService(st, inv, hasher, log),
		groups:     NewGroupService(st, inv, hasher, acts, log),
		activities: acts,
		index:      idx,
		cache:      c,
		nearby: proximity.NewService(st, proximity.Options{
			Index:  idx,
			Cache:  c,
			TTLs:   cache.DefaultTTLs(),
			Limits: proximity.DefaultLimits(),
			Log:    log,
		}),
	}
}

func at(lat, lon float64) *model.Coordinate { return &model.Coordinate{Latitude: lat, Longitude: lon} }

func TestUserLifecycleDrivesSearch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	a, err := h.users.Register(ctx, RegisterUser{Nickname: "A", Temporary: true, Location: at(40.00, -73.00)})
	if err != nil {
		t.Fatalf("Register A: %v", err)
	}
	if _, err := h.users.Register(ctx, RegisterUser{Nickname: "B", Temporary: true, Location: at(41.00, -73.00)}); err != nil {
		t.Fatalf("Register B: %v", err)
	}
	if _, ok := h.index.Position(model.KindUser, a.UserID); !ok {
		t.Fatal("registered user not indexed")
	}

	q := proximity.Query{Latitude: 40.001, Longitude: -73.001, RadiusMeters: 500, Limit: 10}
	res, err := h.nearby.Users.FindNearby(ctx, q)
	if err != nil || len(res) != 1 || res[0].ID != a.UserID {
		t.Fatalf("nearby: res=%v err=%v", res, err)
	}

	// moving away takes A out of the result at once
	if _, err := h.users.ReportLocation(ctx, a.UserID, model.Coordinate{Latitude: 40.1, Longitude: -73}); err != nil {
		t.Fatalf("ReportLocation: %v", err)
	}
	if res, _ := h.nearby.Users.FindNearby(ctx, q); len(res) != 0 {
		t.Fatalf("moved user still found: %v", res)
	}
	if _, err := h.users.ReportLocation(ctx, a.UserID, model.Coordinate{Latitude: 40, Longitude: -73}); err != nil {
		t.Fatalf("ReportLocation back: %v", err)
	}

	renamed, err := h.users.Rename(ctx, a.UserID, "Alpha")
	if err != nil || renamed.Nickname != "Alpha" {
		t.Fatalf("Rename: %v %v", renamed, err)
	}
	res, _ = h.nearby.Users.FindNearby(ctx, q)
	if len(res) != 1 || res[0].Entity.Nickname != "Alpha" {
		t.Fatalf("rename not visible in search: %v", res)
	}

	if err := h.users.Delete(ctx, a.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res, err := h.nearby.Users.FindNearby(ctx, q); err != nil || len(res) != 0 {
		t.Fatalf("deleted user still found: res=%v err=%v", res, err)
	}
	if _, err := h.users.Get(ctx, a.UserID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get deleted: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	if _, err := h.users.Register(ctx, RegisterUser{Nickname: "kim", Password: "x"}); !model.IsValidationError(err) {
		t.Fatalf("short password accepted: %v", err)
	}
	u, err := h.users.Register(ctx, RegisterUser{Nickname: "kim", Password: "secret12"})
	if err != nil || !u.HasPassword || u.PasswordHash == "secret12" {
		t.Fatalf("Register: %+v %v", u, err)
	}
	if _, err := h.users.ReportLocation(ctx, u.UserID, model.Coordinate{Latitude: 95}); !model.IsValidationError(err) {
		t.Fatalf("bad location accepted: %v", err)
	}
}

func TestGroupLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	creator, _ := h.users.Register(ctx, RegisterUser{Nickname: "c", Temporary: true})
	joiner, _ := h.users.Register(ctx, RegisterUser{Nickname: "j", Temporary: true})

	g, err := h.groups.Create(ctx, CreateGroup{
		CreatorID:    creator.UserID,
		Name:         "Night Owls",
		LocationName: "Cafe",
		Location:     model.Coordinate{Latitude: 35.0, Longitude: 139.0},
		Password:     "letmein",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !g.HasPassword || g.MemberCount != 1 {
		t.Fatalf("Create: %+v", g)
	}
	acts, err := h.activities.ListForUser(ctx, creator.UserID, 0)
	if err != nil || len(acts) != 1 || acts[0].ActivityType != model.ActivityGroupCreate || *acts[0].GroupID != g.GroupID {
		t.Fatalf("GROUP_CREATE activity: %v %v", acts, err)
	}

	if _, err := h.groups.Join(ctx, g.GroupID, joiner.UserID, ""); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("join without password: %v", err)
	}
	if _, err := h.groups.Join(ctx, g.GroupID, joiner.UserID, "wrong-pass"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("join with wrong password: %v", err)
	}
	joined, err := h.groups.Join(ctx, g.GroupID, joiner.UserID, "letmein")
	if err != nil || joined.MemberCount != 2 {
		t.Fatalf("Join: %+v %v", joined, err)
	}
	if again, err := h.groups.Join(ctx, g.GroupID, joiner.UserID, "letmein"); err != nil || again.MemberCount != 2 {
		t.Fatalf("rejoin: %+v %v", again, err)
	}
	if acts, _ := h.activities.ListForUser(ctx, joiner.UserID, 0); len(acts) != 1 || acts[0].ActivityType != model.ActivityUserJoined {
		t.Fatalf("USER_JOINED activity: %v", acts)
	}

	q := proximity.Query{Latitude: 35.0, Longitude: 139.0, RadiusMeters: 100}
	res, err := h.nearby.Groups.FindNearby(ctx, q)
	if err != nil || len(res) != 1 || res[0].Entity.MemberCount != 2 {
		t.Fatalf("nearby groups: %v %v", res, err)
	}
	if res[0].Entity.PasswordHash != "" {
		t.Fatal("password hash leaked through snapshot")
	}

	for _, uid := range []string{joiner.UserID, creator.UserID, creator.UserID} {
		if _, err := h.groups.Leave(ctx, g.GroupID, uid); err != nil {
			t.Fatalf("Leave: %v", err)
		}
	}
	res, err = h.nearby.Groups.FindNearby(ctx, q)
	if err != nil || len(res) != 1 || res[0].Entity.MemberCount != 0 {
		t.Fatalf("empty group must stay discoverable with count 0: %v %v", res, err)
	}

	moved, err := h.groups.Move(ctx, g.GroupID, "Station", model.Coordinate{Latitude: 35.01, Longitude: 139.0})
	if err != nil || moved.LocationName != "Station" {
		t.Fatalf("Move: %v %v", moved, err)
	}
	if res, _ := h.nearby.Groups.FindNearby(ctx, q); len(res) != 0 {
		t.Fatalf("moved group still at old spot: %v", res)
	}

	name := "Early Birds"
	if upd, err := h.groups.UpdateDetails(ctx, g.GroupID, &name, nil); err != nil || upd.Name != name {
		t.Fatalf("UpdateDetails: %v %v", upd, err)
	}
	found, err := h.groups.SearchByName(ctx, "early", 0)
	if err != nil || len(found) != 1 {
		t.Fatalf("SearchByName: %v %v", found, err)
	}
	if _, err := h.groups.SearchByName(ctx, "  ", 0); !model.IsValidationError(err) {
		t.Fatalf("blank search accepted: %v", err)
	}

	if err := h.groups.Delete(ctx, g.GroupID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := h.index.Position(model.KindGroup, g.GroupID); ok {
		t.Fatal("deleted group still indexed")
	}
	if _, err := h.groups.Join(ctx, g.GroupID, joiner.UserID, "letmein"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("join deleted group: %v", err)
	}
}

func TestUserDeleteRefreshesGroupSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	owner, _ := h.users.Register(ctx, RegisterUser{Nickname: "o", Temporary: true})
	member, _ := h.users.Register(ctx, RegisterUser{Nickname: "m", Temporary: true})
	g, err := h.groups.Create(ctx, CreateGroup{CreatorID: owner.UserID, Name: "g", LocationName: "x", Location: model.Coordinate{Latitude: 1, Longitude: 1}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.groups.Join(ctx, g.GroupID, member.UserID, ""); err != nil {
		t.Fatalf("Join: %v", err)
	}
	joinedActs, _ := h.activities.ListForUser(ctx, member.UserID, 0)

	if err := h.users.Delete(ctx, member.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var snap model.Group
	if hit, err := h.cache.Get(ctx, model.KindGroup, g.GroupID, &snap); err != nil || !hit || snap.MemberCount != 1 {
		t.Fatalf("group snapshot not refreshed: hit=%v err=%v snap=%+v", hit, err, snap)
	}
	for _, a := range joinedActs {
		if _, ok := h.index.Position(model.KindActivity, a.ActivityID); ok {
			t.Fatalf("activity %s of deleted user still indexed", a.ActivityID)
		}
	}
}

func TestActivityLifetime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	u, _ := h.users.Register(ctx, RegisterUser{Nickname: "u", Temporary: true})

	a, err := h.activities.Record(ctx, RecordActivity{UserID: u.UserID, Type: model.ActivityUserCheckin, Location: model.Coordinate{Latitude: 2, Longitude: 2}})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if a.ExpiresAt == nil || time.Until(*a.ExpiresAt) < 59*time.Minute {
		t.Fatalf("lifetime not applied: %v", a.ExpiresAt)
	}
	res, err := h.nearby.Activities.FindNearby(ctx, proximity.Query{Latitude: 2, Longitude: 2, RadiusMeters: 10})
	if err != nil || len(res) != 1 {
		t.Fatalf("nearby activities: %v %v", res, err)
	}

	if _, err := h.activities.Record(ctx, RecordActivity{UserID: "nobody", Type: model.ActivityUserCheckin}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("activity for unknown user: %v", err)
	}
	if err := h.activities.Delete(ctx, a.ActivityID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res, _ := h.nearby.Activities.FindNearby(ctx, proximity.Query{Latitude: 2, Longitude: 2, RadiusMeters: 10}); len(res) != 0 {
		t.Fatalf("deleted activity found: %v", res)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Compare(hash, "correct horse"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, "battery staple"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("mismatch: %v", err)
	}
}
