package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"membershare/src/apperr"
	"membershare/src/models"
	"membershare/src/storage"
)

const invitationColumns = `id, group_id, email, token, status, sent_at, expires_at, accepted_at`

func scanInvitation(row pgx.Row) (models.Invitation, error) {
	var (
		inv        models.Invitation
		acceptedAt *int64
	)
	if err := row.Scan(&inv.ID, &inv.GroupID, &inv.Email, &inv.Token, &inv.Status, &inv.SentAt, &inv.ExpiresAt, &acceptedAt); err != nil {
		return models.Invitation{}, err
	}
	inv.AcceptedAt = derefInt(acceptedAt)
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

	err := s.pool.QueryRow(ctx, `
		INSERT INTO group_invitations (group_id, email, token, status, sent_at, expires_at, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, invitation.GroupID, invitation.Email, invitation.Token, invitation.Status, invitation.SentAt, invitation.ExpiresAt, nullableInt(invitation.AcceptedAt)).Scan(&invitation.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Invitation{}, apperr.Wrap(apperr.CodeConflict, "invitation token already exists", err)
		}
		return models.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return invitation, nil
}

func (s *Store) GetInvitation(ctx context.Context, id int64) (models.Invitation, error) {
	return s.getInvitation(ctx, `SELECT `+invitationColumns+` FROM group_invitations WHERE id = $1`, id)
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (models.Invitation, error) {
	return s.getInvitation(ctx, `SELECT `+invitationColumns+` FROM group_invitations WHERE token = $1`, token)
}

func (s *Store) getInvitation(ctx context.Context, query string, arg any) (models.Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Invitation{}, apperr.NotFound("invitation not found")
		}
		return models.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *Store) InvitationTokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM group_invitations WHERE token = $1)`, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("check invitation token: %w", err)
	}
	return exists, nil
}

func (s *Store) ListInvitations(ctx context.Context, groupID int64, status models.InvitationStatus) ([]models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM group_invitations WHERE group_id = $1`
	args := []any{groupID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY sent_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
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
		tag pgconn.CommandTag
		err error
	)
	if to == models.InvitationAccepted {
		tag, err = s.pool.Exec(ctx, `
			UPDATE group_invitations SET status = $1, accepted_at = $2 WHERE id = $3 AND status = $4
		`, to, at, id, from)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE group_invitations SET status = $1 WHERE id = $2 AND status = $3
		`, to, id, from)
	}
	if err != nil {
		return false, fmt.Errorf("transition invitation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ExpireInvitations(ctx context.Context, now int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE group_invitations SET status = 'expired' WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InvitationStats(ctx context.Context) (models.InvitationStats, error) {
	var stats models.InvitationStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'accepted'),
			COUNT(*) FILTER (WHERE status = 'declined'),
			COUNT(*) FILTER (WHERE status = 'expired'),
			COUNT(*) FILTER (WHERE status = 'revoked')
		FROM group_invitations
	`).Scan(&stats.Total, &stats.Pending, &stats.Accepted, &stats.Declined, &stats.Expired, &stats.Revoked)
	if err != nil {
		return models.InvitationStats{}, fmt.Errorf("invitation stats: %w", err)
	}
	return stats, nil
}
