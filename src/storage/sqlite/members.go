package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"membershare/src/apperr"
	"membershare/src/models"
	"membershare/src/storage"
)

const memberColumns = `id, group_id, user_id, email, member_type, status, invited_at, joined_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanMember(row rowScanner) (models.GroupMember, error) {
	var (
		m        models.GroupMember
		userID   sql.NullInt64
		joinedAt sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.GroupID, &userID, &m.Email, &m.MemberType, &m.Status, &m.InvitedAt, &joinedAt); err != nil {
		return models.GroupMember{}, err
	}
	m.UserID = userID.Int64
	m.JoinedAt = joinedAt.Int64
	return m, nil
}

func insertMember(ctx context.Context, db execer, member models.GroupMember, now int64) (models.GroupMember, error) {
	if member.InvitedAt == 0 {
		member.InvitedAt = now
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, email, member_type, status, invited_at, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, member.GroupID, nullableInt(member.UserID), member.Email, member.MemberType, member.Status, member.InvitedAt, nullableInt(member.JoinedAt))
	if err != nil {
		return models.GroupMember{}, fmt.Errorf("insert member: %w", err)
	}
	member.ID, err = res.LastInsertId()
	if err != nil {
		return models.GroupMember{}, fmt.Errorf("read member id: %w", err)
	}
	return member, nil
}

func (s *Store) CreateMember(ctx context.Context, member models.GroupMember) (models.GroupMember, error) {
	if err := storage.ValidateMember(member); err != nil {
		return models.GroupMember{}, err
	}
	return insertMember(ctx, s.db, member, s.unixNow())
}

func (s *Store) AddMemberWithinCapacity(ctx context.Context, member models.GroupMember) (models.GroupMember, bool, error) {
	if err := storage.ValidateMember(member); err != nil {
		return models.GroupMember{}, false, err
	}
	if member.MemberType != models.MemberSubaccount {
		return models.GroupMember{}, false, apperr.Invalid("only subaccounts consume capacity")
	}
	if _, err := s.GetGroup(ctx, member.GroupID); err != nil {
		return models.GroupMember{}, false, err
	}
	if member.InvitedAt == 0 {
		member.InvitedAt = s.unixNow()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, email, member_type, status, invited_at, joined_at)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE (
			SELECT COUNT(*) FROM group_members
			WHERE group_id = ? AND member_type = 'subaccount' AND status IN ('active', 'pending')
		) < (
			SELECT max_subaccounts FROM member_groups WHERE id = ?
		)
	`, member.GroupID, nullableInt(member.UserID), member.Email, member.MemberType, member.Status, member.InvitedAt, nullableInt(member.JoinedAt),
		member.GroupID, member.GroupID)
	if err != nil {
		return models.GroupMember{}, false, fmt.Errorf("insert member within capacity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.GroupMember{}, false, fmt.Errorf("insert member within capacity: %w", err)
	}
	if n == 0 {
		return models.GroupMember{}, false, nil
	}
	member.ID, err = res.LastInsertId()
	if err != nil {
		return models.GroupMember{}, false, fmt.Errorf("read member id: %w", err)
	}
	return member, true, nil
}

func (s *Store) ActivateMember(ctx context.Context, id, userID, joinedAt int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_members
		SET status = 'active', user_id = COALESCE(?, user_id), joined_at = ?
		WHERE id = ?
		  AND status = 'pending'
		  AND (
			SELECT COUNT(*) FROM group_members m
			WHERE m.group_id = group_members.group_id AND m.member_type = 'subaccount' AND m.status = 'active'
		  ) < (
			SELECT g.max_subaccounts FROM member_groups g WHERE g.id = group_members.group_id
		  )
	`, nullableInt(userID), joinedAt, id)
	if err != nil {
		return false, fmt.Errorf("activate member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate member: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetMember(ctx context.Context, id int64) (models.GroupMember, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM group_members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GroupMember{}, apperr.NotFound("member not found")
		}
		return models.GroupMember{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *Store) FindMemberByEmail(ctx context.Context, groupID int64, email string) (models.GroupMember, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM group_members WHERE group_id = ? AND email = ? ORDER BY id LIMIT 1
	`, groupID, email)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GroupMember{}, apperr.NotFound("member not found")
		}
		return models.GroupMember{}, fmt.Errorf("find member by email: %w", err)
	}
	return m, nil
}

func (s *Store) FindMemberByUser(ctx context.Context, groupID, userID int64, memberType models.MemberType) (models.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = ? AND user_id = ?`
	args := []any{groupID, userID}
	if memberType != "" {
		query += " AND member_type = ?"
		args = append(args, memberType)
	}
	query += " ORDER BY id LIMIT 1"

	m, err := scanMember(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GroupMember{}, apperr.NotFound("member not found")
		}
		return models.GroupMember{}, fmt.Errorf("find member by user: %w", err)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID int64, status models.MemberStatus) ([]models.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = ?`
	args := []any{groupID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY invited_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := make([]models.GroupMember, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountMembers(ctx context.Context, groupID int64) (storage.MemberCount, error) {
	var count storage.MemberCount
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM group_members
		WHERE group_id = ? AND member_type = 'subaccount'
	`, groupID).Scan(&count.Active, &count.Pending)
	if err != nil {
		return storage.MemberCount{}, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteMember(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM group_members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return requireAffected(res, "member not found")
}
