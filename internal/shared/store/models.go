package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by single-row lookups that found nothing.
var ErrNotFound = errors.New("not found")

// Worker mirrors the workers table.
type Worker struct {
	Zone     string
	Endpoint string
	Enabled  bool
	LastSeen *time.Time
}

// GetWorker returns the enabled worker for a zone, or ErrNotFound.
func (s *Store) GetWorker(ctx context.Context, zone string) (Worker, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT zone, endpoint, enabled, last_seen FROM workers
		WHERE zone = $1 AND enabled = true
	`, zone)
	var w Worker
	if err := row.Scan(&w.Zone, &w.Endpoint, &w.Enabled, &w.LastSeen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Worker{}, ErrNotFound
		}
		return Worker{}, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

// SyncWorkers upserts the given zone->endpoint map and disables any
// enabled worker whose zone is absent from it. Atomic.
func (s *Store) SyncWorkers(ctx context.Context, zoneToEndpoint map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("sync workers: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	zones := make([]string, 0, len(zoneToEndpoint))
	for zone, endpoint := range zoneToEndpoint {
		zones = append(zones, zone)
		if _, err := tx.Exec(ctx, `
			INSERT INTO workers (zone, endpoint, enabled, updated_at)
			VALUES ($1, $2, true, NOW())
			ON CONFLICT (zone) DO UPDATE SET
				endpoint = excluded.endpoint,
				enabled = true,
				updated_at = NOW()
		`, zone, endpoint); err != nil {
			return fmt.Errorf("sync workers: upsert %s: %w", zone, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE workers SET enabled = false, updated_at = NOW()
		WHERE NOT (zone = ANY($1)) AND enabled = true
	`, zones); err != nil {
		return fmt.Errorf("sync workers: disable absent: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateHeartbeat sets last_seen = NOW() for a zone; reports whether a
// row was updated.
func (s *Store) UpdateHeartbeat(ctx context.Context, zone string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE workers SET last_seen = NOW() WHERE zone = $1`, zone)
	if err != nil {
		return false, fmt.Errorf("update heartbeat: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AuthorizedOrg mirrors the authorized_orgs table.
type AuthorizedOrg struct {
	GithubOrg      string
	Zones          []string
	DomainPatterns []string
	Enabled        bool
}

func (s *Store) GetAuthorizedOrg(ctx context.Context, githubOrg string) (AuthorizedOrg, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT github_org, zones, domain_patterns, enabled FROM authorized_orgs
		WHERE github_org = $1 AND enabled = true
	`, strings.ToLower(githubOrg))
	var o AuthorizedOrg
	if err := row.Scan(&o.GithubOrg, &o.Zones, &o.DomainPatterns, &o.Enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthorizedOrg{}, ErrNotFound
		}
		return AuthorizedOrg{}, fmt.Errorf("get authorized org: %w", err)
	}
	return o, nil
}

func (s *Store) ListAuthorizedOrgs(ctx context.Context) ([]AuthorizedOrg, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT github_org, zones, domain_patterns, enabled FROM authorized_orgs ORDER BY github_org
	`)
	if err != nil {
		return nil, fmt.Errorf("list authorized orgs: %w", err)
	}
	defer rows.Close()
	var out []AuthorizedOrg
	for rows.Next() {
		var o AuthorizedOrg
		if err := rows.Scan(&o.GithubOrg, &o.Zones, &o.DomainPatterns, &o.Enabled); err != nil {
			return nil, fmt.Errorf("list authorized orgs: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAuthorizedOrg(ctx context.Context, o AuthorizedOrg) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO authorized_orgs (github_org, zones, domain_patterns, enabled)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (github_org) DO UPDATE SET
			zones = excluded.zones,
			domain_patterns = excluded.domain_patterns,
			enabled = true
	`, strings.ToLower(o.GithubOrg), o.Zones, o.DomainPatterns)
	if err != nil {
		return fmt.Errorf("upsert authorized org: %w", err)
	}
	return nil
}

func (s *Store) DeleteAuthorizedOrg(ctx context.Context, githubOrg string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM authorized_orgs WHERE github_org = $1`, strings.ToLower(githubOrg))
	if err != nil {
		return fmt.Errorf("delete authorized org: %w", err)
	}
	return nil
}

// JobContext mirrors the job_contexts table.
type JobContext struct {
	JobID          string
	InstallationID int64
	Org            string
	Repo           string
	PRCommentID    *int64
	CommitSHA      string
}

// StoreJobContext inserts a job context, or on conflict preserves an
// existing non-null pr_comment_id rather than overwriting it with null.
func (s *Store) StoreJobContext(ctx context.Context, jc JobContext) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_contexts (job_id, installation_id, org, repo, pr_comment_id, commit_sha)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			pr_comment_id = COALESCE(job_contexts.pr_comment_id, excluded.pr_comment_id)
	`, jc.JobID, jc.InstallationID, jc.Org, jc.Repo, jc.PRCommentID, jc.CommitSHA)
	if err != nil {
		return fmt.Errorf("store job context: %w", err)
	}
	return nil
}

func (s *Store) GetJobContext(ctx context.Context, jobID string) (JobContext, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, installation_id, org, repo, pr_comment_id, commit_sha
		FROM job_contexts WHERE job_id = $1
	`, jobID)
	var jc JobContext
	if err := row.Scan(&jc.JobID, &jc.InstallationID, &jc.Org, &jc.Repo, &jc.PRCommentID, &jc.CommitSHA); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JobContext{}, ErrNotFound
		}
		return JobContext{}, fmt.Errorf("get job context: %w", err)
	}
	return jc, nil
}

// PRCommentKey identifies a tracked PR comment.
type PRCommentKey struct {
	Org      string
	Repo     string
	PRNumber int
}

func (s *Store) GetPRComment(ctx context.Context, key PRCommentKey) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT comment_id FROM pr_comments WHERE org = $1 AND repo = $2 AND pr_number = $3
	`, strings.ToLower(key.Org), strings.ToLower(key.Repo), key.PRNumber)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get pr comment: %w", err)
	}
	return id, nil
}

func (s *Store) UpsertPRComment(ctx context.Context, key PRCommentKey, commentID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pr_comments (org, repo, pr_number, comment_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org, repo, pr_number) DO UPDATE SET comment_id = excluded.comment_id
	`, strings.ToLower(key.Org), strings.ToLower(key.Repo), key.PRNumber, commentID)
	if err != nil {
		return fmt.Errorf("upsert pr comment: %w", err)
	}
	return nil
}

func (s *Store) DeletePRComment(ctx context.Context, key PRCommentKey) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pr_comments WHERE org = $1 AND repo = $2 AND pr_number = $3
	`, strings.ToLower(key.Org), strings.ToLower(key.Repo), key.PRNumber)
	if err != nil {
		return fmt.Errorf("delete pr comment: %w", err)
	}
	return nil
}
