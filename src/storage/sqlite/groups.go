package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"membershare/src/apperr"
	"membershare/src/models"
	"membershare/src/storage"
)

const groupColumns = `id, owner_id, product_id, variation_id, membership_id, name, max_subaccounts, status, created_at`

func scanGroup(row rowScanner) (models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.OwnerID, &g.ProductID, &g.VariationID, &g.MembershipID, &g.Name, &g.MaxSubaccounts, &g.Status, &g.CreatedAt)
	return g, err
}

func (s *Store) CreateGroup(ctx context.Context, group models.Group, owner *models.GroupMember) (models.Group, error) {
	if err := storage.ValidateGroup(group); err != nil {
		return models.Group{}, err
	}
	if group.Status == "" {
		group.Status = models.GroupActive
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = s.unixNow()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Group{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO member_groups (owner_id, product_id, variation_id, membership_id, name, max_subaccounts, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, group.OwnerID, group.ProductID, group.VariationID, group.MembershipID, group.Name, group.MaxSubaccounts, group.Status, group.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Group{}, apperr.Wrap(apperr.CodeConflict, "group already exists for owner and variation", err)
		}
		return models.Group{}, fmt.Errorf("insert group: %w", err)
	}
	group.ID, err = res.LastInsertId()
	if err != nil {
		return models.Group{}, fmt.Errorf("read group id: %w", err)
	}

	if owner != nil {
		member := *owner
		member.GroupID = group.ID
		if err := storage.ValidateMember(member); err != nil {
			return models.Group{}, err
		}
		if _, err := insertMember(ctx, tx, member, group.CreatedAt); err != nil {
			return models.Group{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Group{}, fmt.Errorf("commit tx: %w", err)
	}
	return group, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (models.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM member_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Group{}, apperr.NotFound("group not found")
		}
		return models.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *Store) GetGroupByOwnerVariation(ctx context.Context, ownerID, variationID int64) (models.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM member_groups WHERE owner_id = ? AND variation_id = ?
	`, ownerID, variationID)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Group{}, apperr.NotFound("group not found")
		}
		return models.Group{}, fmt.Errorf("get group by owner variation: %w", err)
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM member_groups`
	where := make([]string, 0, 5)
	args := make([]any, 0, 6)

	if filter.OwnerID != 0 {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.MemberUserID != 0 {
		where = append(where, "id IN (SELECT group_id FROM group_members WHERE user_id = ? AND status = 'active')")
		args = append(args, filter.MemberUserID)
	}
	if filter.MembershipID != 0 {
		where = append(where, "membership_id = ?")
		args = append(args, filter.MembershipID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.UnlinkedOnly {
		where = append(where, "membership_id = 0")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	out := make([]models.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups rows: %w", err)
	}
	return out, nil
}

func (s *Store) RenameGroup(ctx context.Context, id int64, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.MissingField("name")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE member_groups SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	return requireAffected(res, "group not found")
}

func (s *Store) UpdateGroupStatus(ctx context.Context, id int64, status models.GroupStatus) (bool, error) {
	if !status.Valid() {
		return false, apperr.Invalid("unknown group status")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE member_groups SET status = ? WHERE id = ? AND status <> ?
	`, status, id, status)
	if err != nil {
		return false, fmt.Errorf("update group status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update group status: %w", err)
	}
	if n == 0 {
		if _, err := s.GetGroup(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) LinkGroupMembership(ctx context.Context, id, membershipID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE member_groups SET membership_id = ? WHERE id = ? AND membership_id = 0
	`, membershipID, id)
	if err != nil {
		return false, fmt.Errorf("link group membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link group membership: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ExpireGroupsByMembership(ctx context.Context, membershipID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE member_groups SET status = 'expired' WHERE membership_id = ? AND status <> 'expired'
	`, membershipID)
	if err != nil {
		return 0, fmt.Errorf("expire groups by membership: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM member_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return requireAffected(res, "group not found")
}

func (s *Store) GroupStats(ctx context.Context) (models.GroupStats, error) {
	var stats models.GroupStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM member_groups),
			(SELECT COUNT(*) FROM member_groups WHERE status = 'active'),
			(SELECT COUNT(*) FROM member_groups WHERE membership_id <> 0),
			(SELECT COUNT(*) FROM group_members WHERE member_type = 'subaccount'),
			(SELECT COUNT(*) FROM group_members WHERE member_type = 'subaccount' AND status = 'active')
	`).Scan(&stats.TotalGroups, &stats.ActiveGroups, &stats.LinkedGroups, &stats.TotalSubaccounts, &stats.ActiveSubaccounts)
	if err != nil {
		return models.GroupStats{}, fmt.Errorf("group stats: %w", err)
	}
	return stats, nil
}

func requireAffected(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(notFound)
	}
	return nil
}
