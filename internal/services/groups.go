package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/invalidate"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
	"github.com/geosocial/proximity/internal/validate"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// CreateGroup is the input of GroupService.Create.
type CreateGroup struct {
	CreatorID    string
	Name         string
	LocationName string
	Location     model.Coordinate
	Description  *string
	Password     string
}

type GroupService struct {
	store      store.Store
	inv        *invalidate.Invalidator
	hasher     PasswordHasher
	activities *ActivityService
	log        zerolog.Logger
}

func NewGroupService(s store.Store, inv *invalidate.Invalidator, hasher PasswordHasher, activities *ActivityService, log zerolog.Logger) *GroupService {
	return &GroupService{store: s, inv: inv, hasher: hasher, activities: activities, log: log}
}

// Create stores the group with its creator as first member and records a
// GROUP_CREATE activity at the group's location.
func (s *GroupService) Create(ctx context.Context, req CreateGroup) (*model.Group, error) {
	if err := validate.CreateGroup(req.CreatorID, req.Name, req.LocationName, req.Location, req.Description, req.Password); err != nil {
		return nil, err
	}
	if _, err := s.store.Users().Get(ctx, req.CreatorID); err != nil {
		return nil, err
	}
	g := &model.Group{
		Name:         req.Name,
		LocationName: req.LocationName,
		Location:     req.Location,
		Description:  req.Description,
		CreatorID:    req.CreatorID,
	}
	if req.Password != "" {
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		g.PasswordHash = hash
	}
	created, err := s.store.Groups().Create(ctx, g)
	if err != nil {
		return nil, err
	}
	s.inv.OnEntityCreated(ctx, created)
	s.recordActivity(ctx, created, req.CreatorID, model.ActivityGroupCreate, fmt.Sprintf("created group %q", created.Name))
	return created, nil
}

func (s *GroupService) Get(ctx context.Context, groupID string) (*model.Group, error) {
	return s.store.Groups().Get(ctx, groupID)
}

// Join adds userID to the group. Password-protected groups require the
// matching password; a mismatch is model.ErrForbidden.
func (s *GroupService) Join(ctx context.Context, groupID, userID, password string) (*model.Group, error) {
	if err := validate.NonEmpty("userId", userID); err != nil {
		return nil, err
	}
	g, err := s.store.Groups().Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.HasPassword {
		if password == "" {
			return nil, fmt.Errorf("%w: password required", model.ErrForbidden)
		}
		if err := s.hasher.Compare(g.PasswordHash, password); err != nil {
			return nil, err
		}
	}
	if _, err := s.store.Users().Get(ctx, userID); err != nil {
		return nil, err
	}
	g, joined, err := s.store.Groups().Join(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if joined {
		s.inv.OnEntityUpdated(ctx, g)
		s.recordActivity(ctx, g, userID, model.ActivityUserJoined, fmt.Sprintf("joined group %q", g.Name))
	}
	return g, nil
}

// Leave removes userID from the group. The group stays discoverable even
// when its last member leaves.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) (*model.Group, error) {
	if err := validate.NonEmpty("userId", userID); err != nil {
		return nil, err
	}
	g, left, err := s.store.Groups().Leave(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if left {
		s.inv.OnEntityUpdated(ctx, g)
	}
	return g, nil
}

func (s *GroupService) Move(ctx context.Context, groupID, locationName string, c model.Coordinate) (*model.Group, error) {
	if err := validate.LocationName(locationName); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	g, err := s.store.Groups().UpdateLocation(ctx, groupID, locationName, c)
	if err != nil {
		return nil, err
	}
	s.inv.OnEntityMoved(ctx, g)
	return g, nil
}

// UpdateDetails changes the name and/or description; nil leaves a field as is.
func (s *GroupService) UpdateDetails(ctx context.Context, groupID string, name, description *string) (*model.Group, error) {
	if name != nil {
		if err := validate.GroupName(*name); err != nil {
			return nil, err
		}
	}
	if err := validate.Description(description); err != nil {
		return nil, err
	}
	g, err := s.store.Groups().UpdateDetails(ctx, groupID, name, description)
	if err != nil {
		return nil, err
	}
	s.inv.OnEntityUpdated(ctx, g)
	return g, nil
}

// Delete removes the group and its memberships. Activities that reference it keep the id.
func (s *GroupService) Delete(ctx context.Context, groupID string) error {
	if err := s.store.Groups().Delete(ctx, groupID); err != nil {
		return err
	}
	s.inv.OnEntityDeleted(ctx, model.KindGroup, groupID)
	return nil
}

func (s *GroupService) SearchByName(ctx context.Context, query string, limit int) ([]*model.Group, error) {
	query = strings.TrimSpace(query)
	if err := validate.NonEmpty("name", query); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}
	return s.store.Groups().SearchByName(ctx, query, limit)
}

func (s *GroupService) Members(ctx context.Context, groupID string) ([]*model.GroupMembership, error) {
	if _, err := s.store.Groups().Get(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.Groups().Members(ctx, groupID)
}

// recordActivity is best effort: the group write already committed.
func (s *GroupService) recordActivity(ctx context.Context, g *model.Group, userID string, kind model.ActivityType, details string) {
	if s.activities == nil {
		return
	}
	gid := g.GroupID
	_, err := s.activities.Record(ctx, RecordActivity{
		UserID:   userID,
		GroupID:  &gid,
		Type:     kind,
		Details:  &details,
		Location: g.Location,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("group_id", gid).Str("activity_type", string(kind)).Msg("group activity not recorded")
	}
}
