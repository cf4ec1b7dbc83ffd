package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/geosocial/proximity/internal/model"
)

type users struct{ s *Store }

const userColumns = `user_id, nickname, is_temporary, password_hash, latitude, longitude, last_active_at, created_at`

func scanUser(r rowScanner) (*model.User, error) {
	var (
		u        model.User
		hash     sql.NullString
		lat, lon sql.NullFloat64
		last     sql.NullInt64
		created  int64
	)
	if err := r.Scan(&u.UserID, &u.Nickname, &u.IsTemporary, &hash, &lat, &lon, &last, &created); err != nil {
		return nil, err
	}
	if hash.Valid && hash.String != "" {
		u.PasswordHash = hash.String
		u.HasPassword = true
	}
	if lat.Valid && lon.Valid {
		u.Location = &model.Coordinate{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	u.LastActive = nullTime(last)
	u.CreationTime = fromMillis(created)
	return &u, nil
}

func (r *users) queryUsers(ctx context.Context, q querier, query string, args ...any) ([]*model.User, error) {
	rows, err := q.QueryContext(ctx, r.s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *users) get(ctx context.Context, q querier, userID string) (*model.User, error) {
	row := q.QueryRowContext(ctx, r.s.d.Rebind(`SELECT `+userColumns+` FROM users WHERE user_id = ?`), userID)
	u, err := scanUser(row)
	if err != nil {
		return nil, r.s.mapErr(err)
	}
	return u, nil
}

func (r *users) Get(ctx context.Context, userID string) (*model.User, error) {
	return r.get(ctx, r.s.db, userID)
}

func (r *users) WithinBox(ctx context.Context, box orb.Bound, limit int) ([]*model.User, error) {
	args := boxArgs(box.Min.Lat(), box.Max.Lat(), box.Min.Lon(), box.Max.Lon())
	return r.queryUsers(ctx, r.s.db, `SELECT `+userColumns+` FROM users
        WHERE `+boxClause+`
        ORDER BY `+boxOrder+`, user_id
        LIMIT ?`, append(args, limit)...)
}

func (r *users) Scan(ctx context.Context, afterID string, limit int) ([]*model.User, error) {
	return r.queryUsers(ctx, r.s.db, `SELECT `+userColumns+` FROM users
        WHERE user_id > ? ORDER BY user_id LIMIT ?`, afterID, limit)
}

func (r *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	if out.UserID == "" {
		out.UserID = uuid.New().String()
	}
	created := time.UnixMilli(r.s.nowMillis()).UTC()
	out.CreationTime = created
	out.LastActive = &created
	out.HasPassword = out.PasswordHash != ""

	var lat, lon any
	if out.Location != nil {
		lat, lon = out.Location.Latitude, out.Location.Longitude
	}
	var hash any
	if out.HasPassword {
		hash = out.PasswordHash
	}
	_, err := r.s.exec(ctx, r.s.db, `
        INSERT INTO users (user_id, nickname, is_temporary, password_hash, latitude, longitude, last_active_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.UserID, out.Nickname, out.IsTemporary, hash, lat, lon, created.UnixMilli(), created.UnixMilli())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *users) UpdateLocation(ctx context.Context, userID string, c model.Coordinate) (*model.User, error) {
	var out *model.User
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := r.s.exec(ctx, tx, `UPDATE users SET latitude = ?, longitude = ?, last_active_at = ? WHERE user_id = ?`,
			c.Latitude, c.Longitude, r.s.nowMillis(), userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		out, err = r.get(ctx, tx, userID)
		return err
	})
	return out, err
}

func (r *users) UpdateNickname(ctx context.Context, userID, nickname string) (*model.User, error) {
	var out *model.User
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := r.s.exec(ctx, tx, `UPDATE users SET nickname = ?, last_active_at = ? WHERE user_id = ?`,
			nickname, r.s.nowMillis(), userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		out, err = r.get(ctx, tx, userID)
		return err
	})
	return out, err
}

func (r *users) Delete(ctx context.Context, userID string) (*model.UserDeletion, error) {
	out := &model.UserDeletion{}
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		groupIDs, err := selectIDs(ctx, r.s, tx, `SELECT group_id FROM group_members WHERE user_id = ? ORDER BY group_id`, userID)
		if err != nil {
			return err
		}
		activityIDs, err := selectIDs(ctx, r.s, tx, `SELECT activity_id FROM activities WHERE user_id = ? ORDER BY activity_id`, userID)
		if err != nil {
			return err
		}
		if _, err := r.s.exec(ctx, tx, `
            UPDATE chat_groups
            SET member_count = CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END
            WHERE group_id IN (SELECT group_id FROM group_members WHERE user_id = ?)`, userID); err != nil {
			return err
		}
		if _, err := r.s.exec(ctx, tx, `DELETE FROM group_members WHERE user_id = ?`, userID); err != nil {
			return err
		}
		if _, err := r.s.exec(ctx, tx, `DELETE FROM activities WHERE user_id = ?`, userID); err != nil {
			return err
		}
		n, err := r.s.exec(ctx, tx, `DELETE FROM users WHERE user_id = ?`, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		out.GroupIDs = groupIDs
		out.ActivityIDs = activityIDs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func selectIDs(ctx context.Context, s *Store, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
