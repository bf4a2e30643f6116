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

const invitationColumns = `id, group_id, email, token, status, sent_at, expires_at, accepted_at`

func scanInvitation(row rowScanner) (models.Invitation, error) {
	var (
		inv        models.Invitation
		acceptedAt sql.NullInt64
	)
	if err := row.Scan(&inv.ID, &inv.GroupID, &inv.Email, &inv.Token, &inv.Status, &inv.SentAt, &inv.ExpiresAt, &acceptedAt); err != nil {
		return models.Invitation{}, err
	}
	inv.AcceptedAt = acceptedAt.Int64
	return inv, nil
}

func (s *Store) CreateInvitation(ctx context.Context, invitation models.Invitation) (models.Invitation, error) {
	if err := storage.ValidateInvitation(invitation); err != nil {
		return models.Invitation{}, err
	}
	if invitation.Status == "" {
		invitation.Status = models.InvitationPending
	}
	if invitation.SentAt == 0 {
		invitation.SentAt = s.unixNow()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO group_invitations (group_id, email, token, status, sent_at, expires_at, accepted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, invitation.GroupID, invitation.Email, invitation.Token, invitation.Status, invitation.SentAt, invitation.ExpiresAt, nullableInt(invitation.AcceptedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Invitation{}, apperr.Wrap(apperr.CodeConflict, "invitation token already exists", err)
		}
		return models.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	invitation.ID, err = res.LastInsertId()
	if err != nil {
		return models.Invitation{}, fmt.Errorf("read invitation id: %w", err)
	}
	return invitation, nil
}

func (s *Store) GetInvitation(ctx context.Context, id int64) (models.Invitation, error) {
	return s.getInvitation(ctx, `SELECT `+invitationColumns+` FROM group_invitations WHERE id = ?`, id)
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (models.Invitation, error) {
	return s.getInvitation(ctx, `SELECT `+invitationColumns+` FROM group_invitations WHERE token = ?`, token)
}

func (s *Store) getInvitation(ctx context.Context, query string, arg any) (models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invitation{}, apperr.NotFound("invitation not found")
		}
		return models.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *Store) InvitationTokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM group_invitations WHERE token = ?)`, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("check invitation token: %w", err)
	}
	return exists, nil
}

func (s *Store) ListInvitations(ctx context.Context, groupID int64, status models.InvitationStatus) ([]models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM group_invitations WHERE group_id = ?`
	args := []any{groupID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY sent_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	out := make([]models.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations rows: %w", err)
	}
	return out, nil
}

func (s *Store) TransitionInvitation(ctx context.Context, id int64, from, to models.InvitationStatus, at int64) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if to == models.InvitationAccepted {
		res, err = s.db.ExecContext(ctx, `
			UPDATE group_invitations SET status = ?, accepted_at = ? WHERE id = ? AND status = ?
		`, to, at, id, from)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE group_invitations SET status = ? WHERE id = ? AND status = ?
		`, to, id, from)
	}
	if err != nil {
		return false, fmt.Errorf("transition invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition invitation: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ExpireInvitations(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_invitations SET status = 'expired' WHERE status = 'pending' AND expires_at < ?
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) InvitationStats(ctx context.Context) (models.InvitationStats, error) {
	var stats models.InvitationStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'declined' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'revoked' THEN 1 ELSE 0 END), 0)
		FROM group_invitations
	`).Scan(&stats.Total, &stats.Pending, &stats.Accepted, &stats.Declined, &stats.Expired, &stats.Revoked)
	if err != nil {
		return models.InvitationStats{}, fmt.Errorf("invitation stats: %w", err)
	}
	return stats, nil
}
