// Package storetest holds the compliance suite every store.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
)

// Run exercises the compliance suite against a store.Store implementation.
// Backends may be shared between runs, so every row uses fresh ids and the
// located rows sit around a random anchor.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	anchor := model.Coordinate{
		Latitude:  rand.Float64()*120 - 60,
		Longitude: rand.Float64()*340 - 170,
	}

	t.Run("users", func(t *testing.T) { testUsers(t, s, anchor) })
	t.Run("groups", func(t *testing.T) { testGroups(t, s, anchor) })
	t.Run("activities", func(t *testing.T) { testActivities(t, s, anchor) })
	t.Run("user_delete_cascade", func(t *testing.T) { testUserDelete(t, s, anchor) })
}

func near(c model.Coordinate, dLat, dLon float64) model.Coordinate {
	return model.Coordinate{Latitude: c.Latitude + dLat, Longitude: c.Longitude + dLon}
}

func around(c model.Coordinate, deg float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{c.Longitude - deg, c.Latitude - deg},
		Max: orb.Point{c.Longitude + deg, c.Latitude + deg},
	}
}

func newID(prefix string) string { return prefix + "-" + uuid.New().String() }

func testUsers(t *testing.T, s store.Store, anchor model.Coordinate) {
	ctx := context.Background()
	uid := newID("u")

	created, err := s.Users().Create(ctx, &model.User{UserID: uid, Nickname: "alice", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if !created.HasPassword || created.LastActive == nil || created.CreationTime.IsZero() {
		t.Fatalf("CreateUser: unexpected %+v", created)
	}
	if _, err := s.Users().Create(ctx, &model.User{UserID: uid, Nickname: "again"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate CreateUser: want ErrConflict, got %v", err)
	}

	got, err := s.Users().Get(ctx, uid)
	if err != nil || got.Nickname != "alice" || got.Location != nil || got.PasswordHash != "hash" {
		t.Fatalf("GetUser: got=%+v err=%v", got, err)
	}
	if _, err := s.Users().Get(ctx, newID("missing")); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetUser missing: want ErrNotFound, got %v", err)
	}

	// users without a location never appear in a box query
	if lst, err := s.Users().WithinBox(ctx, around(anchor, 1), 100); err != nil || containsUser(lst, uid) {
		t.Fatalf("WithinBox before location: n=%d err=%v", len(lst), err)
	}

	loc := near(anchor, 0.001, 0.001)
	moved, err := s.Users().UpdateLocation(ctx, uid, loc)
	if err != nil || moved.Location == nil || moved.Location.Latitude != loc.Latitude {
		t.Fatalf("UpdateLocation: got=%+v err=%v", moved, err)
	}
	if _, err := s.Users().UpdateLocation(ctx, newID("missing"), loc); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdateLocation missing: want ErrNotFound, got %v", err)
	}

	renamed, err := s.Users().UpdateNickname(ctx, uid, "alicia")
	if err != nil || renamed.Nickname != "alicia" {
		t.Fatalf("UpdateNickname: got=%+v err=%v", renamed, err)
	}

	far := newID("u")
	if _, err := s.Users().Create(ctx, &model.User{UserID: far, Nickname: "far", Location: ptr(near(anchor, 5, 5))}); err != nil {
		t.Fatalf("CreateUser far: %v", err)
	}
	lst, err := s.Users().WithinBox(ctx, around(anchor, 0.01), 100)
	if err != nil || !containsUser(lst, uid) || containsUser(lst, far) {
		t.Fatalf("WithinBox: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Users().WithinBox(ctx, around(anchor, 10), 1); err != nil || len(lst) != 1 {
		t.Fatalf("WithinBox limit: n=%d err=%v", len(lst), err)
	}

	page, err := s.Users().Scan(ctx, "", 1_000_000)
	if err != nil || !containsUser(page, uid) || !containsUser(page, far) {
		t.Fatalf("Scan: n=%d err=%v", len(page), err)
	}
	for i := 1; i < len(page); i++ {
		if page[i-1].UserID >= page[i].UserID {
			t.Fatalf("Scan not ordered by id at %d", i)
		}
	}
	if rest, err := s.Users().Scan(ctx, page[len(page)-1].UserID, 10); err != nil || len(rest) != 0 {
		t.Fatalf("Scan past last: n=%d err=%v", len(rest), err)
	}
}

func testGroups(t *testing.T, s store.Store, anchor model.Coordinate) {
	ctx := context.Background()
	creator := mustUser(t, s, anchor)
	joiner := mustUser(t, s, anchor)

	marker := uuid.New().String()[:8]
	desc := "weekly meetup"
	g, err := s.Groups().Create(ctx, &model.Group{
		Name:         "Run Club " + marker,
		LocationName: "Park",
		Location:     near(anchor, 0.002, 0),
		Description:  &desc,
		CreatorID:    creator,
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.GroupID == "" || g.MemberCount != 1 {
		t.Fatalf("CreateGroup: unexpected %+v", g)
	}

	got, err := s.Groups().Get(ctx, g.GroupID)
	if err != nil || got.Description == nil || *got.Description != desc || got.CreatorID != creator {
		t.Fatalf("GetGroup: got=%+v err=%v", got, err)
	}

	after, joined, err := s.Groups().Join(ctx, g.GroupID, joiner)
	if err != nil || !joined || after.MemberCount != 2 {
		t.Fatalf("Join: got=%+v joined=%v err=%v", after, joined, err)
	}
	// rejoining only refreshes last-active
	after, joined, err = s.Groups().Join(ctx, g.GroupID, joiner)
	if err != nil || joined || after.MemberCount != 2 {
		t.Fatalf("rejoin: got=%+v joined=%v err=%v", after, joined, err)
	}
	if _, _, err := s.Groups().Join(ctx, newID("missing"), joiner); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Join missing: want ErrNotFound, got %v", err)
	}

	members, err := s.Groups().Members(ctx, g.GroupID)
	if err != nil || len(members) != 2 {
		t.Fatalf("Members: n=%d err=%v", len(members), err)
	}
	roles := map[string]string{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	if roles[creator] != model.RoleCreator || roles[joiner] != model.RoleMember {
		t.Fatalf("Members roles: %v", roles)
	}

	mine, err := s.Groups().ListForUser(ctx, joiner)
	if err != nil || len(mine) != 1 || mine[0].GroupID != g.GroupID {
		t.Fatalf("ListForUser: n=%d err=%v", len(mine), err)
	}

	found, err := s.Groups().SearchByName(ctx, "club "+marker, 10)
	if err != nil || len(found) != 1 || found[0].GroupID != g.GroupID {
		t.Fatalf("SearchByName: n=%d err=%v", len(found), err)
	}
	if found, err := s.Groups().SearchByName(ctx, "%"+marker, 10); err != nil || len(found) != 0 {
		t.Fatalf("SearchByName must treat %% literally: n=%d err=%v", len(found), err)
	}

	after, left, err := s.Groups().Leave(ctx, g.GroupID, joiner)
	if err != nil || !left || after.MemberCount != 1 {
		t.Fatalf("Leave: got=%+v left=%v err=%v", after, left, err)
	}
	after, left, err = s.Groups().Leave(ctx, g.GroupID, joiner)
	if err != nil || left || after.MemberCount != 1 {
		t.Fatalf("Leave twice: got=%+v left=%v err=%v", after, left, err)
	}
	after, _, err = s.Groups().Leave(ctx, g.GroupID, creator)
	if err != nil || after.MemberCount != 0 {
		t.Fatalf("Leave creator: got=%+v err=%v", after, err)
	}

	moved, err := s.Groups().UpdateLocation(ctx, g.GroupID, "Harbour", near(anchor, -0.003, 0.001))
	if err != nil || moved.LocationName != "Harbour" {
		t.Fatalf("UpdateLocation: got=%+v err=%v", moved, err)
	}
	name := "Swim Club " + marker
	updated, err := s.Groups().UpdateDetails(ctx, g.GroupID, &name, nil)
	if err != nil || updated.Name != name || updated.Description == nil || *updated.Description != desc {
		t.Fatalf("UpdateDetails: got=%+v err=%v", updated, err)
	}
	if _, err := s.Groups().UpdateDetails(ctx, newID("missing"), &name, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdateDetails missing: want ErrNotFound, got %v", err)
	}

	inBox, err := s.Groups().WithinBox(ctx, around(anchor, 0.01), 100)
	if err != nil || !containsGroup(inBox, g.GroupID) {
		t.Fatalf("WithinBox: n=%d err=%v", len(inBox), err)
	}

	if err := s.Groups().Delete(ctx, g.GroupID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if _, err := s.Groups().Get(ctx, g.GroupID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get after delete: want ErrNotFound, got %v", err)
	}
	if err := s.Groups().Delete(ctx, g.GroupID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete twice: want ErrNotFound, got %v", err)
	}
}

func testActivities(t *testing.T, s store.Store, anchor model.Coordinate) {
	ctx := context.Background()
	uid := mustUser(t, s, anchor)

	details := "checked in"
	live, err := s.Activities().Create(ctx, &model.Activity{
		UserID:       uid,
		ActivityType: model.ActivityUserCheckin,
		Details:      &details,
		Location:     near(anchor, 0, 0.001),
	})
	if err != nil || live.ActivityID == "" {
		t.Fatalf("CreateActivity: got=%+v err=%v", live, err)
	}
	past := time.Now().Add(-time.Hour)
	expired, err := s.Activities().Create(ctx, &model.Activity{
		UserID:       uid,
		ActivityType: model.ActivityMessageSent,
		Location:     near(anchor, 0, 0.002),
		ExpiresAt:    &past,
	})
	if err != nil {
		t.Fatalf("CreateActivity expired: %v", err)
	}

	got, err := s.Activities().Get(ctx, live.ActivityID)
	if err != nil || got.Details == nil || *got.Details != details || got.GroupID != nil {
		t.Fatalf("GetActivity: got=%+v err=%v", got, err)
	}
	got, err = s.Activities().Get(ctx, expired.ActivityID)
	if err != nil || got.ExpiresAt == nil || got.Discoverable(time.Now()) {
		t.Fatalf("GetActivity expired: got=%+v err=%v", got, err)
	}

	inBox, err := s.Activities().WithinBox(ctx, around(anchor, 0.01), 100)
	if err != nil || !containsActivity(inBox, live.ActivityID) || containsActivity(inBox, expired.ActivityID) {
		t.Fatalf("WithinBox: n=%d err=%v", len(inBox), err)
	}

	mine, err := s.Activities().ListForUser(ctx, uid, 10)
	if err != nil || len(mine) != 2 {
		t.Fatalf("ListForUser: n=%d err=%v", len(mine), err)
	}

	if err := s.Activities().Delete(ctx, live.ActivityID); err != nil {
		t.Fatalf("DeleteActivity: %v", err)
	}
	if err := s.Activities().Delete(ctx, live.ActivityID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete twice: want ErrNotFound, got %v", err)
	}
}

func testUserDelete(t *testing.T, s store.Store, anchor model.Coordinate) {
	ctx := context.Background()
	owner := mustUser(t, s, anchor)
	member := mustUser(t, s, anchor)

	g, err := s.Groups().Create(ctx, &model.Group{Name: "cascade", LocationName: "here", Location: anchor, CreatorID: owner})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, _, err := s.Groups().Join(ctx, g.GroupID, member); err != nil {
		t.Fatalf("Join: %v", err)
	}
	a, err := s.Activities().Create(ctx, &model.Activity{UserID: member, ActivityType: model.ActivityUserJoined, Location: anchor, GroupID: &g.GroupID})
	if err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}

	del, err := s.Users().Delete(ctx, member)
	if err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if len(del.GroupIDs) != 1 || del.GroupIDs[0] != g.GroupID || len(del.ActivityIDs) != 1 || del.ActivityIDs[0] != a.ActivityID {
		t.Fatalf("DeleteUser report: %+v", del)
	}
	if _, err := s.Users().Get(ctx, member); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get after delete: want ErrNotFound, got %v", err)
	}
	if _, err := s.Activities().Get(ctx, a.ActivityID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("activity must be deleted with its user, got %v", err)
	}
	after, err := s.Groups().Get(ctx, g.GroupID)
	if err != nil || after.MemberCount != 1 {
		t.Fatalf("member count after user delete: got=%+v err=%v", after, err)
	}
	if _, err := s.Users().Delete(ctx, member); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete twice: want ErrNotFound, got %v", err)
	}
}

func mustUser(t *testing.T, s store.Store, at model.Coordinate) string {
	t.Helper()
	u, err := s.Users().Create(context.Background(), &model.User{UserID: newID("u"), Nickname: "n", Location: &at})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.UserID
}

func ptr[T any](v T) *T { return &v }

func containsUser(lst []*model.User, id string) bool {
	for _, u := range lst {
		if u.UserID == id {
			return true
		}
	}
	return false
}

func containsGroup(lst []*model.Group, id string) bool {
	for _, g := range lst {
		if g.GroupID == id {
			return true
		}
	}
	return false
}

func containsActivity(lst []*model.Activity, id string) bool {
	for _, a := range lst {
		if a.ActivityID == id {
			return true
		}
	}
	return false
}
