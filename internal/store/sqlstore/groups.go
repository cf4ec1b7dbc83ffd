package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/geosocial/proximity/internal/model"
)

type groups struct{ s *Store }

const groupColumns = `g.group_id, g.name, g.location_name, g.latitude, g.longitude, g.description, g.password_hash, g.creator_id, g.member_count, g.created_at`

func scanGroup(r rowScanner) (*model.Group, error) {
	var (
		g       model.Group
		desc    sql.NullString
		hash    sql.NullString
		created int64
	)
	if err := r.Scan(&g.GroupID, &g.Name, &g.LocationName, &g.Location.Latitude, &g.Location.Longitude,
		&desc, &hash, &g.CreatorID, &g.MemberCount, &created); err != nil {
		return nil, err
	}
	g.Description = nullString(desc)
	if hash.Valid && hash.String != "" {
		g.PasswordHash = hash.String
		g.HasPassword = true
	}
	g.CreationTime = fromMillis(created)
	return &g, nil
}

func (r *groups) queryGroups(ctx context.Context, q querier, query string, args ...any) ([]*model.Group, error) {
	rows, err := q.QueryContext(ctx, r.s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *groups) get(ctx context.Context, q querier, groupID string) (*model.Group, error) {
	row := q.QueryRowContext(ctx, r.s.d.Rebind(`SELECT `+groupColumns+` FROM chat_groups g WHERE g.group_id = ?`), groupID)
	g, err := scanGroup(row)
	if err != nil {
		return nil, r.s.mapErr(err)
	}
	return g, nil
}

func (r *groups) Get(ctx context.Context, groupID string) (*model.Group, error) {
	return r.get(ctx, r.s.db, groupID)
}

func (r *groups) WithinBox(ctx context.Context, box orb.Bound, limit int) ([]*model.Group, error) {
	args := boxArgs(box.Min.Lat(), box.Max.Lat(), box.Min.Lon(), box.Max.Lon())
	return r.queryGroups(ctx, r.s.db, `SELECT `+groupColumns+` FROM chat_groups g
        WHERE `+boxClause+`
        ORDER BY `+boxOrder+`, g.group_id
        LIMIT ?`, append(args, limit)...)
}

func (r *groups) Scan(ctx context.Context, afterID string, limit int) ([]*model.Group, error) {
	return r.queryGroups(ctx, r.s.db, `SELECT `+groupColumns+` FROM chat_groups g
        WHERE g.group_id > ? ORDER BY g.group_id LIMIT ?`, afterID, limit)
}

func (r *groups) Create(ctx context.Context, m *model.Group) (*model.Group, error) {
	out := *m
	if out.GroupID == "" {
		out.GroupID = uuid.New().String()
	}
	created := time.UnixMilli(r.s.nowMillis()).UTC()
	out.CreationTime = created
	out.MemberCount = 1
	out.HasPassword = out.PasswordHash != ""
	var hash any
	if out.HasPassword {
		hash = out.PasswordHash
	}

	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.s.exec(ctx, tx, `
            INSERT INTO chat_groups (group_id, name, location_name, latitude, longitude, description, password_hash, creator_id, member_count, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			out.GroupID, out.Name, out.LocationName, out.Location.Latitude, out.Location.Longitude,
			stringArg(out.Description), hash, out.CreatorID, out.MemberCount, created.UnixMilli()); err != nil {
			return err
		}
		_, err := r.s.exec(ctx, tx, `
            INSERT INTO group_members (group_id, user_id, role, joined_at, last_active_at)
            VALUES (?, ?, ?, ?, ?)`,
			out.GroupID, out.CreatorID, model.RoleCreator, created.UnixMilli(), created.UnixMilli())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *groups) isMember(ctx context.Context, q querier, groupID, userID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, r.s.d.Rebind(`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`), groupID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r *groups) Join(ctx context.Context, groupID, userID string) (*model.Group, bool, error) {
	var (
		out    *model.Group
		joined bool
	)
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		now := r.s.nowMillis()
		member, err := r.isMember(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if member {
			if _, err := r.s.exec(ctx, tx, `UPDATE group_members SET last_active_at = ? WHERE group_id = ? AND user_id = ?`,
				now, groupID, userID); err != nil {
				return err
			}
		} else {
			n, err := r.s.exec(ctx, tx, `UPDATE chat_groups SET member_count = member_count + 1 WHERE group_id = ?`, groupID)
			if err != nil {
				return err
			}
			if n == 0 {
				return model.ErrNotFound
			}
			if _, err := r.s.exec(ctx, tx, `
                INSERT INTO group_members (group_id, user_id, role, joined_at, last_active_at)
                VALUES (?, ?, ?, ?, ?)`, groupID, userID, model.RoleMember, now, now); err != nil {
				return err
			}
			joined = true
		}
		out, err = r.get(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, joined, nil
}

func (r *groups) Leave(ctx context.Context, groupID, userID string) (*model.Group, bool, error) {
	var (
		out  *model.Group
		left bool
	)
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := r.s.exec(ctx, tx, `DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
		if err != nil {
			return err
		}
		if n > 0 {
			left = true
			if _, err := r.s.exec(ctx, tx, `
                UPDATE chat_groups
                SET member_count = CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END
                WHERE group_id = ?`, groupID); err != nil {
				return err
			}
		}
		out, err = r.get(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, left, nil
}

func (r *groups) UpdateLocation(ctx context.Context, groupID, locationName string, c model.Coordinate) (*model.Group, error) {
	var out *model.Group
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := r.s.exec(ctx, tx, `UPDATE chat_groups SET location_name = ?, latitude = ?, longitude = ? WHERE group_id = ?`,
			locationName, c.Latitude, c.Longitude, groupID)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		out, err = r.get(ctx, tx, groupID)
		return err
	})
	return out, err
}

func (r *groups) UpdateDetails(ctx context.Context, groupID string, name, description *string) (*model.Group, error) {
	var out *model.Group
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := r.get(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if name != nil {
			cur.Name = *name
		}
		if description != nil {
			cur.Description = description
		}
		if _, err := r.s.exec(ctx, tx, `UPDATE chat_groups SET name = ?, description = ? WHERE group_id = ?`,
			cur.Name, stringArg(cur.Description), groupID); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

func (r *groups) Delete(ctx context.Context, groupID string) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.s.exec(ctx, tx, `DELETE FROM group_members WHERE group_id = ?`, groupID); err != nil {
			return err
		}
		n, err := r.s.exec(ctx, tx, `DELETE FROM chat_groups WHERE group_id = ?`, groupID)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func (r *groups) SearchByName(ctx context.Context, query string, limit int) ([]*model.Group, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	return r.queryGroups(ctx, r.s.db, `SELECT `+groupColumns+` FROM chat_groups g
        WHERE LOWER(g.name) LIKE ? ESCAPE '\'
        ORDER BY g.member_count DESC, g.name, g.group_id
        LIMIT ?`, pattern, limit)
}

func (r *groups) ListForUser(ctx context.Context, userID string) ([]*model.Group, error) {
	return r.queryGroups(ctx, r.s.db, `SELECT `+groupColumns+` FROM chat_groups g
        JOIN group_members m ON m.group_id = g.group_id
        WHERE m.user_id = ?
        ORDER BY m.last_active_at DESC, g.group_id`, userID)
}

func (r *groups) Members(ctx context.Context, groupID string) ([]*model.GroupMembership, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.d.Rebind(`
        SELECT group_id, user_id, role, joined_at, last_active_at
        FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`), groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.GroupMembership
	for rows.Next() {
		var (
			m              model.GroupMembership
			joined, active int64
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &joined, &active); err != nil {
			return nil, err
		}
		m.JoinedAt = fromMillis(joined)
		m.LastActive = fromMillis(active)
		out = append(out, &m)
	}
	return out, rows.Err()
}
