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

const accountColumns = `id, username, email, display_name, password_hash, created_at`

func scanAccount(row pgx.Row) (models.Account, error) {
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
	if account.ID != 0 {
		return s.createAccountWithID(ctx, account)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (username, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, account.Username, account.Email, account.DisplayName, account.PasswordHash, account.CreatedAt).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, apperr.Wrap(apperr.CodeConflict, "account already exists", err)
		}
		return models.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// createAccountWithID registers an externally assigned id and moves the id
// sequence past it so generated ids never reuse it.
func (s *Store) createAccountWithID(ctx context.Context, account models.Account) (models.Account, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, username, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, account.ID, account.Username, account.Email, account.DisplayName, account.PasswordHash, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, apperr.Wrap(apperr.CodeConflict, "account already exists", err)
		}
		return models.Account{}, fmt.Errorf("insert account: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('accounts', 'id'), GREATEST((SELECT MAX(id) FROM accounts), 1))
	`); err != nil {
		return models.Account{}, fmt.Errorf("advance account id sequence: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Account{}, fmt.Errorf("commit tx: %w", err)
	}
	return account, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	return s.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return s.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (s *Store) getAccount(ctx context.Context, query string, arg any) (models.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, apperr.NotFound("account not found")
		}
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

const membershipColumns = `id, user_id, plan_id, plan_slug, status, product_ids, updated_at`

func scanMembership(row pgx.Row) (models.ExternalMembership, error) {
	var m models.ExternalMembership
	err := row.Scan(&m.ID, &m.UserID, &m.PlanID, &m.PlanSlug, &m.Status, &m.ProductIDs, &m.UpdatedAt)
	return m, err
}

func (s *Store) UpsertMembership(ctx context.Context, membership models.ExternalMembership) error {
	if membership.ID == 0 {
		return apperr.MissingField("membership id")
	}
	if membership.UserID == 0 {
		return apperr.MissingField("user id")
	}
	if membership.ProductIDs == nil {
		membership.ProductIDs = []int64{}
	}
	if membership.UpdatedAt == 0 {
		membership.UpdatedAt = s.unixNow()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO external_memberships (id, user_id, plan_id, plan_slug, status, product_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			plan_id = EXCLUDED.plan_id,
			plan_slug = EXCLUDED.plan_slug,
			status = EXCLUDED.status,
			product_ids = EXCLUDED.product_ids,
			updated_at = EXCLUDED.updated_at
	`, membership.ID, membership.UserID, membership.PlanID, membership.PlanSlug, membership.Status, membership.ProductIDs, membership.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, id int64) (models.ExternalMembership, error) {
	m, err := scanMembership(s.pool.QueryRow(ctx, `SELECT `+membershipColumns+` FROM external_memberships WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExternalMembership{}, apperr.NotFound("membership not found")
		}
		return models.ExternalMembership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID int64) ([]models.ExternalMembership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+membershipColumns+` FROM external_memberships WHERE user_id = $1 ORDER BY id
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM external_memberships WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

func (s *Store) RecordWebhookEvent(ctx context.Context, eventID, source string, receivedAt int64) error {
	if eventID == "" {
		return apperr.MissingField("event id")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, source, received_at) VALUES ($1, $2, $3)
	`, eventID, source, receivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateEvent
		}
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
