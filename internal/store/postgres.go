package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/matcenter/internal/database"
	"github.com/jackc/pgx/v5"
)

// Postgres persists values in the kv_store table, one row per (origin, key).
// Concurrent writers from several processes resolve as last-write-wins.
type Postgres struct {
	db     *database.DB
	origin string
}

// NewPostgres creates a store on a migrated database
func NewPostgres(db *database.DB, origin string) *Postgres {
	return &Postgres{db: db, origin: origin}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM kv_store WHERE origin = $1 AND key = $2`

	var value string
	err := p.db.Pool.QueryRow(ctx, query, p.origin, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (origin, key, value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (origin, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := p.db.Pool.Exec(ctx, query, p.origin, key, value); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM kv_store WHERE origin = $1 AND key = $2`
	if _, err := p.db.Pool.Exec(ctx, query, p.origin, key); err != nil {
		return fmt.Errorf("postgres remove %s: %w", key, err)
	}
	return nil
}

// HealthCheck pings the connection pool
func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.db.HealthCheck(ctx)
}
