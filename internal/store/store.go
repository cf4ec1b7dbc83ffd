package store

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/geosocial/proximity/internal/model"
)

// Store is the authoritative store of users, groups and activities.
type Store interface {
	Users() Users
	Groups() Groups
	Activities() Activities
}

// Source is the read contract the proximity search needs from each repo.
// Get returns model.ErrNotFound for unknown ids. WithinBox returns at most
// limit rows inside box, nearest to its center first.
type Source[T model.Entity] interface {
	Get(ctx context.Context, id string) (T, error)
	WithinBox(ctx context.Context, box orb.Bound, limit int) ([]T, error)
	// Scan pages through every row ordered by id, starting after afterID.
	Scan(ctx context.Context, afterID string, limit int) ([]T, error)
}

type Users interface {
	Source[*model.User]
	Create(ctx context.Context, u *model.User) (*model.User, error)
	UpdateLocation(ctx context.Context, userID string, c model.Coordinate) (*model.User, error)
	UpdateNickname(ctx context.Context, userID, nickname string) (*model.User, error)
	// Delete removes the user with their memberships and activities in one transaction.
	Delete(ctx context.Context, userID string) (*model.UserDeletion, error)
}

type Groups interface {
	Source[*model.Group]
	// Create inserts the group and its creator's membership; member count starts at 1.
	Create(ctx context.Context, g *model.Group) (*model.Group, error)
	// Join adds a membership and bumps the member count. For an existing member
	// it only refreshes last-active and reports joined=false.
	Join(ctx context.Context, groupID, userID string) (g *model.Group, joined bool, err error)
	// Leave removes a membership; the member count never drops below zero.
	Leave(ctx context.Context, groupID, userID string) (g *model.Group, left bool, err error)
	UpdateLocation(ctx context.Context, groupID, locationName string, c model.Coordinate) (*model.Group, error)
	UpdateDetails(ctx context.Context, groupID string, name, description *string) (*model.Group, error)
	Delete(ctx context.Context, groupID string) error
	SearchByName(ctx context.Context, query string, limit int) ([]*model.Group, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Group, error)
	Members(ctx context.Context, groupID string) ([]*model.GroupMembership, error)
}

type Activities interface {
	Source[*model.Activity]
	Create(ctx context.Context, a *model.Activity) (*model.Activity, error)
	Delete(ctx context.Context, activityID string) error
	ListForUser(ctx context.Context, userID string, limit int) ([]*model.Activity, error)
}
