// Package postgres persists jobs and verdicts in PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates a pgx connection pool from the provided DSN. Queries are
// traced via otelpgx so repo spans carry their SQL.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.parse_config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.new_pool: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the jobs and verdicts tables when they do not exist.
// Idempotent; both server and worker call it on startup.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			idempotency_key TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS jobs_idempotency_key_idx ON jobs (idempotency_key) WHERE idempotency_key IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			job_id TEXT PRIMARY KEY REFERENCES jobs(id),
			match_level TEXT NOT NULL,
			content_type TEXT NOT NULL,
			content_text TEXT NOT NULL,
			domain_assessment TEXT NOT NULL DEFAULT '',
			runs_total INT NOT NULL,
			runs_extracted INT NOT NULL,
			eval_error TEXT NOT NULL DEFAULT '',
			loc_authoritative TEXT NOT NULL DEFAULT '',
			loc_conflict BOOLEAN NOT NULL DEFAULT FALSE,
			loc_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			loc_risk TEXT NOT NULL DEFAULT 'none',
			loc_method TEXT NOT NULL DEFAULT '',
			loc_reasoning TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("op=postgres.ensure_schema: %w", err)
		}
	}
	return nil
}
