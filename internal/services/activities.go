package services

import (
	"context"
	"time"

	"github.com/geosocial/proximity/internal/invalidate"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
	"github.com/geosocial/proximity/internal/validate"
)

const (
	defaultActivityPage = 20
	maxActivityPage     = 100
)

// RecordActivity is the input of ActivityService.Record.
type RecordActivity struct {
	UserID   string
	GroupID  *string
	Type     model.ActivityType
	Details  *string
	Location model.Coordinate
	// Lifetime overrides the service default; zero keeps it.
	Lifetime time.Duration
}

type ActivityService struct {
	store    store.Store
	inv      *invalidate.Invalidator
	lifetime time.Duration
	now      func() time.Time
}

// NewActivityService builds the service. A zero lifetime means activities never expire.
func NewActivityService(s store.Store, inv *invalidate.Invalidator, lifetime time.Duration) *ActivityService {
	return &ActivityService{store: s, inv: inv, lifetime: lifetime, now: time.Now}
}

// Record stores an activity for an existing user.
func (s *ActivityService) Record(ctx context.Context, req RecordActivity) (*model.Activity, error) {
	if err := validate.RecordActivity(req.UserID, req.Type, req.Location, req.Details); err != nil {
		return nil, err
	}
	if _, err := s.store.Users().Get(ctx, req.UserID); err != nil {
		return nil, err
	}
	a := &model.Activity{
		UserID:       req.UserID,
		GroupID:      req.GroupID,
		ActivityType: req.Type,
		Details:      req.Details,
		Location:     req.Location,
	}
	lifetime := s.lifetime
	if req.Lifetime > 0 {
		lifetime = req.Lifetime
	}
	if lifetime > 0 {
		exp := s.now().Add(lifetime)
		a.ExpiresAt = &exp
	}
	created, err := s.store.Activities().Create(ctx, a)
	if err != nil {
		return nil, err
	}
	s.inv.OnEntityCreated(ctx, created)
	return created, nil
}

func (s *ActivityService) Delete(ctx context.Context, activityID string) error {
	if err := s.store.Activities().Delete(ctx, activityID); err != nil {
		return err
	}
	s.inv.OnEntityDeleted(ctx, model.KindActivity, activityID)
	return nil
}

func (s *ActivityService) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Activity, error) {
	switch {
	case limit <= 0:
		limit = defaultActivityPage
	case limit > maxActivityPage:
		limit = maxActivityPage
	}
	if _, err := s.store.Users().Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Activities().ListForUser(ctx, userID, limit)
}
