package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"membershare/src/apperr"
	"membershare/src/models"
	"membershare/src/storage"
)

const accountColumns = `id, username, email, display_name, password_hash, created_at`

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.DisplayName, &a.PasswordHash, &a.CreatedAt)
	return a, err
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	if err := storage.ValidateAccount(account); err != nil {
		return models.Account{}, err
	}
	if account.CreatedAt == 0 {
		account.CreatedAt = s.unixNow()
	}
	var (
		res sql.Result
		err error
	)
	if account.ID != 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO accounts (id, username, email, display_name, password_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, account.ID, account.Username, account.Email, account.DisplayName, account.PasswordHash, account.CreatedAt)
	} else {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO accounts (username, email, display_name, password_hash, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, account.Username, account.Email, account.DisplayName, account.PasswordHash, account.CreatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, apperr.Wrap(apperr.CodeConflict, "account already exists", err)
		}
		return models.Account{}, fmt.Errorf("insert account: %w", err)
	}
	if account.ID == 0 {
		account.ID, err = res.LastInsertId()
		if err != nil {
			return models.Account{}, fmt.Errorf("read account id: %w", err)
		}
	}
	return account, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	return s.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return s.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
}

func (s *Store) getAccount(ctx context.Context, query string, arg any) (models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, apperr.NotFound("account not found")
		}
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = ?)`, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (s *Store) UpsertMembership(ctx context.Context, membership models.ExternalMembership) error {
	if membership.ID == 0 {
		return apperr.MissingField("membership id")
	}
	if membership.UserID == 0 {
		return apperr.MissingField("user id")
	}
	productIDs := membership.ProductIDs
	if productIDs == nil {
		productIDs = []int64{}
	}
	encoded, err := json.Marshal(productIDs)
	if err != nil {
		return fmt.Errorf("encode product ids: %w", err)
	}
	if membership.UpdatedAt == 0 {
		membership.UpdatedAt = s.unixNow()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO external_memberships (id, user_id, plan_id, plan_slug, status, product_ids, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			plan_id = excluded.plan_id,
			plan_slug = excluded.plan_slug,
			status = excluded.status,
			product_ids = excluded.product_ids,
			updated_at = excluded.updated_at
	`, membership.ID, membership.UserID, membership.PlanID, membership.PlanSlug, membership.Status, string(encoded), membership.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

const membershipColumns = `id, user_id, plan_id, plan_slug, status, product_ids, updated_at`

func scanMembership(row rowScanner) (models.ExternalMembership, error) {
	var (
		m          models.ExternalMembership
		productIDs string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.PlanID, &m.PlanSlug, &m.Status, &productIDs, &m.UpdatedAt); err != nil {
		return models.ExternalMembership{}, err
	}
	if err := json.Unmarshal([]byte(productIDs), &m.ProductIDs); err != nil {
		return models.ExternalMembership{}, fmt.Errorf("decode product ids: %w", err)
	}
	return m, nil
}

func (s *Store) GetMembership(ctx context.Context, id int64) (models.ExternalMembership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM external_memberships WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ExternalMembership{}, apperr.NotFound("membership not found")
		}
		return models.ExternalMembership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID int64) ([]models.ExternalMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+membershipColumns+` FROM external_memberships WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExternalMembership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteMembership(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM external_memberships WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

func (s *Store) RecordWebhookEvent(ctx context.Context, eventID, source string, receivedAt int64) error {
	if eventID == "" {
		return apperr.MissingField("event id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, source, received_at) VALUES (?, ?, ?)
	`, eventID, source, receivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateEvent
		}
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
