package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"membershare/src/apperr"
	"membershare/src/models"
	"membershare/src/storage"
)

const memberColumns = `id, group_id, user_id, email, member_type, status, invited_at, joined_at`

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanMember(row pgx.Row) (models.GroupMember, error) {
	var (
		m        models.GroupMember
		userID   *int64
		joinedAt *int64
	)
	if err := row.Scan(&m.ID, &m.GroupID, &userID, &m.Email, &m.MemberType, &m.Status, &m.InvitedAt, &joinedAt); err != nil {
		return models.GroupMember{}, err
	}
	m.UserID = derefInt(userID)
	m.JoinedAt = derefInt(joinedAt)
	return m, nil
}

func insertMember(ctx context.Context, db queryRower, member models.GroupMember, now int64) (models.GroupMember, error) {
	if member.InvitedAt == 0 {
		member.InvitedAt = now
	}
	err := db.QueryRow(ctx, `
		INSERT INTO group_members (group_id, user_id, email, member_type, status, invited_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, member.GroupID, nullableInt(member.UserID), member.Email, member.MemberType, member.Status, member.InvitedAt, nullableInt(member.JoinedAt)).Scan(&member.ID)
	if err != nil {
		return models.GroupMember{}, fmt.Errorf("insert member: %w", err)
	}
	return member, nil
}

func (s *Store) CreateMember(ctx context.Context, member models.GroupMember) (models.GroupMember, error) {
	if err := storage.ValidateMember(member); err != nil {
		return models.GroupMember{}, err
	}
	return insertMember(ctx, s.pool, member, s.unixNow())
}

// lockCapacity locks the group row for the rest of tx and returns its capacity.
func lockCapacity(ctx context.Context, tx pgx.Tx, groupID int64) (int, error) {
	var capacity int
	err := tx.QueryRow(ctx, `SELECT max_subaccounts FROM member_groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound("group not found")
		}
		return 0, fmt.Errorf("lock group: %w", err)
	}
	return capacity, nil
}

func (s *Store) AddMemberWithinCapacity(ctx context.Context, member models.GroupMember) (models.GroupMember, bool, error) {
	if err := storage.ValidateMember(member); err != nil {
		return models.GroupMember{}, false, err
	}
	if member.MemberType != models.MemberSubaccount {
		return models.GroupMember{}, false, apperr.Invalid("only subaccounts consume capacity")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.GroupMember{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	capacity, err := lockCapacity(ctx, tx, member.GroupID)
	if err != nil {
		return models.GroupMember{}, false, err
	}

	var seats int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM group_members
		WHERE group_id = $1 AND member_type = 'subaccount' AND status IN ('active', 'pending')
	`, member.GroupID).Scan(&seats); err != nil {
		return models.GroupMember{}, false, fmt.Errorf("count seats: %w", err)
	}
	if seats >= capacity {
		return models.GroupMember{}, false, nil
	}

	created, err := insertMember(ctx, tx, member, s.unixNow())
	if err != nil {
		return models.GroupMember{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.GroupMember{}, false, fmt.Errorf("commit tx: %w", err)
	}
	return created, true, nil
}

func (s *Store) ActivateMember(ctx context.Context, id, userID, joinedAt int64) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var groupID int64
	if err := tx.QueryRow(ctx, `SELECT group_id FROM group_members WHERE id = $1`, id).Scan(&groupID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load member: %w", err)
	}
	capacity, err := lockCapacity(ctx, tx, groupID)
	if err != nil {
		return false, err
	}

	var active int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM group_members
		WHERE group_id = $1 AND member_type = 'subaccount' AND status = 'active'
	`, groupID).Scan(&active); err != nil {
		return false, fmt.Errorf("count active members: %w", err)
	}
	if active >= capacity {
		return false, nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE group_members
		SET status = 'active', user_id = COALESCE($1, user_id), joined_at = $2
		WHERE id = $3 AND status = 'pending'
	`, nullableInt(userID), joinedAt, id)
	if err != nil {
		return false, fmt.Errorf("activate member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (s *Store) GetMember(ctx context.Context, id int64) (models.GroupMember, error) {
	m, err := scanMember(s.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM group_members WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GroupMember{}, apperr.NotFound("member not found")
		}
		return models.GroupMember{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *Store) FindMemberByEmail(ctx context.Context, groupID int64, email string) (models.GroupMember, error) {
	m, err := scanMember(s.pool.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM group_members WHERE group_id = $1 AND email = $2 ORDER BY id LIMIT 1
	`, groupID, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GroupMember{}, apperr.NotFound("member not found")
		}
		return models.GroupMember{}, fmt.Errorf("find member by email: %w", err)
	}
	return m, nil
}

func (s *Store) FindMemberByUser(ctx context.Context, groupID, userID int64, memberType models.MemberType) (models.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = $1 AND user_id = $2`
	args := []any{groupID, userID}
	if memberType != "" {
		query += " AND member_type = $3"
		args = append(args, memberType)
	}
	query += " ORDER BY id LIMIT 1"

	m, err := scanMember(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GroupMember{}, apperr.NotFound("member not found")
		}
		return models.GroupMember{}, fmt.Errorf("find member by user: %w", err)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID int64, status models.MemberStatus) ([]models.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = $1`
	args := []any{groupID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY invited_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
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
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM group_members
		WHERE group_id = $1 AND member_type = 'subaccount'
	`, groupID).Scan(&count.Active, &count.Pending)
	if err != nil {
		return storage.MemberCount{}, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteMember(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM group_members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("member not found")
	}
	return nil
}
