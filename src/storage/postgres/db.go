// Package postgres provides the pgx-backed entitlement store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"membershare/src/lib"
	"membershare/src/storage"
	"membershare/src/storage/postgres/migrations"
)

func NewPool(ctx context.Context, cfg lib.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create DB pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	return pool, nil
}

// Store persists entitlement state in Postgres.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New wraps an open pool and applies pending migrations.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	all, err := storage.LoadMigrations(migrations.FS, ".")
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_meta: %w", err)
	}

	applied := 0
	err = s.pool.QueryRow(ctx, `SELECT value FROM schema_meta WHERE key = $1`, storage.SchemaVersionKey).Scan(&applied)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range storage.Pending(all, applied) {
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m storage.Migration) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, storage.SchemaVersionKey, m.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func (s *Store) unixNow() int64 {
	return s.now().Unix()
}
