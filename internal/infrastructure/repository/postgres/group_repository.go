package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *GroupRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent service startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	key TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_key ON groups(key);

CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	group_id TEXT NOT NULL REFERENCES groups(id),
	subtype TEXT NOT NULL,
	output_url TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_group_url ON items(group_id, output_url);
CREATE INDEX IF NOT EXISTS idx_items_group ON items(group_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// FindByKey matches the canonical key column or, for records created
// before the key column was backfilled, the key derived from the display
// name.
func (r *GroupRepository) FindByKey(ctx context.Context, key string) (*domain.Group, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, key, name, created_at
FROM groups
WHERE key = $1 OR UPPER(BTRIM(name)) = $1
ORDER BY created_at
LIMIT 1
`, key)

	var group domain.Group
	err := row.Scan(&group.ID, &group.Key, &group.Name, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrGroupNotFound, "find group by key", err)
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &group, nil
}

func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO groups (id, key, name, created_at)
VALUES ($1, $2, $3, $4)
`, group.ID, group.Key, group.Name, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}
