// Package store implements PolicyStore: the Postgres-backed persisted
// state for workers, authorized orgs, job contexts, and PR-comment
// tracking.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with PolicyStore's schema and
// queries.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workers (
			zone TEXT PRIMARY KEY,
			endpoint TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			last_seen TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS authorized_orgs (
			github_org TEXT PRIMARY KEY,
			zones TEXT[] NOT NULL DEFAULT '{}',
			domain_patterns TEXT[] NOT NULL DEFAULT '{}',
			enabled BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS job_contexts (
			job_id TEXT PRIMARY KEY,
			installation_id BIGINT NOT NULL,
			org TEXT NOT NULL,
			repo TEXT NOT NULL,
			pr_comment_id BIGINT,
			commit_sha TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS pr_comments (
			org TEXT NOT NULL,
			repo TEXT NOT NULL,
			pr_number INT NOT NULL,
			comment_id BIGINT NOT NULL,
			PRIMARY KEY (org, repo, pr_number)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
