package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/geosocial/proximity/internal/model"
)

type activities struct{ s *Store }

const activityColumns = `activity_id, user_id, group_id, activity_type, details, latitude, longitude, created_at, expires_at`

func scanActivity(r rowScanner) (*model.Activity, error) {
	var (
		a       model.Activity
		groupID sql.NullString
		details sql.NullString
		kind    string
		created int64
		expires sql.NullInt64
	)
	if err := r.Scan(&a.ActivityID, &a.UserID, &groupID, &kind, &details,
		&a.Location.Latitude, &a.Location.Longitude, &created, &expires); err != nil {
		return nil, err
	}
	a.GroupID = nullString(groupID)
	a.Details = nullString(details)
	a.ActivityType = model.ActivityType(kind)
	a.CreationTime = fromMillis(created)
	a.ExpiresAt = nullTime(expires)
	return &a, nil
}

func (r *activities) queryActivities(ctx context.Context, query string, args ...any) ([]*model.Activity, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *activities) Get(ctx context.Context, activityID string) (*model.Activity, error) {
	row := r.s.db.QueryRowContext(ctx, r.s.d.Rebind(`SELECT `+activityColumns+` FROM activities WHERE activity_id = ?`), activityID)
	a, err := scanActivity(row)
	if err != nil {
		return nil, r.s.mapErr(err)
	}
	return a, nil
}

// WithinBox skips expired activities.
func (r *activities) WithinBox(ctx context.Context, box orb.Bound, limit int) ([]*model.Activity, error) {
	b := boxArgs(box.Min.Lat(), box.Max.Lat(), box.Min.Lon(), box.Max.Lon())
	args := make([]any, 0, len(b)+2)
	args = append(args, b[:4]...)
	args = append(args, r.s.nowMillis())
	args = append(args, b[4:]...)
	return r.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities
        WHERE `+boxClause+` AND (expires_at IS NULL OR expires_at > ?)
        ORDER BY `+boxOrder+`, activity_id
        LIMIT ?`, append(args, limit)...)
}

func (r *activities) Scan(ctx context.Context, afterID string, limit int) ([]*model.Activity, error) {
	return r.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities
        WHERE activity_id > ? ORDER BY activity_id LIMIT ?`, afterID, limit)
}

func (r *activities) Create(ctx context.Context, m *model.Activity) (*model.Activity, error) {
	out := *m
	if out.ActivityID == "" {
		out.ActivityID = uuid.New().String()
	}
	out.CreationTime = time.UnixMilli(r.s.nowMillis()).UTC()
	if out.ExpiresAt != nil {
		exp := time.UnixMilli(out.ExpiresAt.UnixMilli()).UTC()
		out.ExpiresAt = &exp
	}
	_, err := r.s.exec(ctx, r.s.db, `
        INSERT INTO activities (activity_id, user_id, group_id, activity_type, details, latitude, longitude, created_at, expires_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ActivityID, out.UserID, stringArg(out.GroupID), string(out.ActivityType), stringArg(out.Details),
		out.Location.Latitude, out.Location.Longitude, out.CreationTime.UnixMilli(), timeArg(out.ExpiresAt))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *activities) Delete(ctx context.Context, activityID string) error {
	n, err := r.s.exec(ctx, r.s.db, `DELETE FROM activities WHERE activity_id = ?`, activityID)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *activities) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Activity, error) {
	return r.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities
        WHERE user_id = ? ORDER BY created_at DESC, activity_id LIMIT ?`, userID, limit)
}
