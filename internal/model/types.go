package model

import (
	"fmt"
	"math"
	"time"
)

// Kind names an entity category that can be searched by location.
type Kind string

const (
	KindUser     Kind = "user"
	KindGroup    Kind = "group"
	KindActivity Kind = "activity"
)

// Kinds lists every searchable kind in a stable order.
var Kinds = []Kind{KindUser, KindGroup, KindActivity}

// ParseKind accepts the singular or plural kind name used on the wire.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "user", "users":
		return KindUser, nil
	case "group", "groups":
		return KindGroup, nil
	case "activity", "activities":
		return KindActivity, nil
	}
	return "", NewValidationError("kind", fmt.Sprintf("unknown kind %q", s))
}

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects non-finite or out of range coordinates.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return NewValidationError("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return NewValidationError("longitude", "must be between -180 and 180")
	}
	return nil
}

// Entity is implemented by every kind stored in the geo index.
type Entity interface {
	EntityID() string
	EntityKind() Kind
	// Position reports the entity's coordinate, false when it has none.
	Position() (Coordinate, bool)
	// Discoverable reports whether the entity may appear in proximity results at now.
	Discoverable(now time.Time) bool
}

// User is a registered or temporary account. Location is the last reported position.
type User struct {
	UserID       string      `json:"userId"`
	Nickname     string      `json:"nickname"`
	IsTemporary  bool        `json:"isTemporary"`
	HasPassword  bool        `json:"hasPassword"`
	PasswordHash string      `json:"-"`
	Location     *Coordinate `json:"location,omitempty"`
	LastActive   *time.Time  `json:"lastActive,omitempty"`
	CreationTime time.Time   `json:"creationTime"`
}

func (u *User) EntityID() string { return u.UserID }
func (u *User) EntityKind() Kind { return KindUser }

func (u *User) Position() (Coordinate, bool) {
	if u.Location == nil {
		return Coordinate{}, false
	}
	return *u.Location, true
}

// Users without a reported location cannot be found by proximity.
func (u *User) Discoverable(time.Time) bool { return u.Location != nil }

// Group is a geographically anchored chat group.
type Group struct {
	GroupID      string     `json:"groupId"`
	Name         string     `json:"name"`
	LocationName string     `json:"locationName"`
	Location     Coordinate `json:"location"`
	Description  *string    `json:"description,omitempty"`
	HasPassword  bool       `json:"hasPassword"`
	PasswordHash string     `json:"-"`
	CreatorID    string     `json:"creatorId"`
	MemberCount  int        `json:"memberCount"`
	CreationTime time.Time  `json:"creationTime"`
}

func (g *Group) EntityID() string             { return g.GroupID }
func (g *Group) EntityKind() Kind             { return KindGroup }
func (g *Group) Position() (Coordinate, bool) { return g.Location, true }
func (g *Group) Discoverable(time.Time) bool  { return true }

// GroupMembership is one user's membership in a group.
type GroupMembership struct {
	GroupID    string    `json:"groupId"`
	UserID     string    `json:"userId"`
	Role       string    `json:"role"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastActive time.Time `json:"lastActive"`
}

const (
	RoleCreator = "creator"
	RoleMember  = "member"
)

// ActivityType enumerates the activity events users can emit.
type ActivityType string

const (
	ActivityUserCheckin ActivityType = "USER_CHECKIN"
	ActivityGroupCreate ActivityType = "GROUP_CREATE"
	ActivityUserJoined  ActivityType = "USER_JOINED"
	ActivityMessageSent ActivityType = "MESSAGE_SENT"
)

// ParseActivityType validates an activity type string.
func ParseActivityType(s string) (ActivityType, error) {
	switch t := ActivityType(s); t {
	case ActivityUserCheckin, ActivityGroupCreate, ActivityUserJoined, ActivityMessageSent:
		return t, nil
	}
	return "", NewValidationError("activityType", fmt.Sprintf("unknown activity type %q", s))
}

// Activity is a located event emitted by a user.
type Activity struct {
	ActivityID   string       `json:"activityId"`
	UserID       string       `json:"userId"`
	GroupID      *string      `json:"groupId,omitempty"`
	ActivityType ActivityType `json:"activityType"`
	Details      *string      `json:"details,omitempty"`
	Location     Coordinate   `json:"location"`
	CreationTime time.Time    `json:"creationTime"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
}

func (a *Activity) EntityID() string             { return a.ActivityID }
func (a *Activity) EntityKind() Kind             { return KindActivity }
func (a *Activity) Position() (Coordinate, bool) { return a.Location, true }

func (a *Activity) Discoverable(now time.Time) bool {
	return a.ExpiresAt == nil || now.Before(*a.ExpiresAt)
}

// UserDeletion reports the rows touched by deleting a user.
type UserDeletion struct {
	GroupIDs    []string
	ActivityIDs []string
}

// Result is one proximity search hit.
type Result[T Entity] struct {
	ID             string  `json:"id"`
	DistanceMeters float64 `json:"distanceMeters"`
	Entity         T       `json:"entity"`
}
