// Package services runs the write use cases: each one commits to the store
// and then hands the result to the invalidator.
package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/invalidate"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
	"github.com/geosocial/proximity/internal/validate"
)

// RegisterUser is the input of UserService.Register.
type RegisterUser struct {
	Nickname  string
	Password  string
	Temporary bool
	Location  *model.Coordinate
}

// UserService handles user-related operations.
type UserService struct {
	store  store.Store
	inv    *invalidate.Invalidator
	hasher PasswordHasher
	log    zerolog.Logger
}

func NewUserService(s store.Store, inv *invalidate.Invalidator, hasher PasswordHasher, log zerolog.Logger) *UserService {
	return &UserService{store: s, inv: inv, hasher: hasher, log: log}
}

func (s *UserService) Register(ctx context.Context, req RegisterUser) (*model.User, error) {
	if err := validate.RegisterUser(req.Nickname, req.Password, req.Temporary, req.Location); err != nil {
		return nil, err
	}
	u := &model.User{Nickname: req.Nickname, IsTemporary: req.Temporary, Location: req.Location}
	if req.Password != "" {
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	created, err := s.store.Users().Create(ctx, u)
	if err != nil {
		return nil, err
	}
	s.inv.OnEntityCreated(ctx, created)
	return created, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	return s.store.Users().Get(ctx, userID)
}

// ReportLocation records the user's current position.
func (s *UserService) ReportLocation(ctx context.Context, userID string, c model.Coordinate) (*model.User, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	u, err := s.store.Users().UpdateLocation(ctx, userID, c)
	if err != nil {
		return nil, err
	}
	s.inv.OnEntityMoved(ctx, u)
	return u, nil
}

func (s *UserService) Rename(ctx context.Context, userID, nickname string) (*model.User, error) {
	if err := validate.Nickname(nickname); err != nil {
		return nil, err
	}
	u, err := s.store.Users().UpdateNickname(ctx, userID, nickname)
	if err != nil {
		return nil, err
	}
	s.inv.OnEntityUpdated(ctx, u)
	return u, nil
}

// Delete removes the user with their memberships and activities, then
// refreshes the snapshots of the groups whose member count dropped.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	del, err := s.store.Users().Delete(ctx, userID)
	if err != nil {
		return err
	}
	s.inv.OnEntityDeleted(ctx, model.KindUser, userID)
	for _, id := range del.ActivityIDs {
		s.inv.OnEntityDeleted(ctx, model.KindActivity, id)
	}
	for _, id := range del.GroupIDs {
		g, err := s.store.Groups().Get(ctx, id)
		if err != nil {
			// the snapshot expires on its own; counts may lag until then
			s.log.Warn().Err(err).Str("group_id", id).Msg("group reload after user delete failed")
			continue
		}
		s.inv.OnEntityUpdated(ctx, g)
	}
	return nil
}

func (s *UserService) Groups(ctx context.Context, userID string) ([]*model.Group, error) {
	if _, err := s.store.Users().Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Groups().ListForUser(ctx, userID)
}
