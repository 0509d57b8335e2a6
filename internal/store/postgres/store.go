// Package postgres provides the Postgres-backed lookup.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/lookup"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists lookup jobs, results, progress events, and rate-limit
// counters in Postgres.
type Store struct {
	pool dbConn
}

// NewStore connects a pool from cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool dbConn) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS lookup_jobs (
		id TEXT PRIMARY KEY,
		hackathon_url TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		error_code TEXT,
		error_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lookup_jobs_url_status
		ON lookup_jobs (hackathon_url, status)`,
	`CREATE TABLE IF NOT EXISTS lookup_progress_events (
		id BIGSERIAL PRIMARY KEY,
		lookup_id TEXT NOT NULL REFERENCES lookup_jobs (id),
		event_type TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lookup_progress_events_lookup
		ON lookup_progress_events (lookup_id, id)`,
	`CREATE TABLE IF NOT EXISTS lookup_results (
		lookup_id TEXT PRIMARY KEY REFERENCES lookup_jobs (id),
		result JSONB NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_events (
		id BIGSERIAL PRIMARY KEY,
		ip_hash TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_events_window
		ON rate_limit_events (ip_hash, endpoint, created_at)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateJob(ctx context.Context, job lookup.Job) error {
	query := `
		INSERT INTO lookup_jobs (id, hackathon_url, status, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, job.ID, job.HackathonURL, string(job.Status), job.CreatedAt); err != nil {
		return fmt.Errorf("insert lookup job: %w", err)
	}
	return nil
}

func (s *Store) MarkStarted(ctx context.Context, jobID string, at time.Time) error {
	query := `UPDATE lookup_jobs SET status = $1, started_at = $2 WHERE id = $3`
	tag, err := s.pool.Exec(ctx, query, string(lookup.StatusStarted), at, jobID)
	if err != nil {
		return fmt.Errorf("mark lookup started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lookup.ErrNotFound
	}
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE lookup_jobs
		SET status = $1, finished_at = $2, error_code = NULL, error_message = NULL
		WHERE id = $3`
	tag, err := s.pool.Exec(ctx, query, string(lookup.StatusCompleted), at, jobID)
	if err != nil {
		return fmt.Errorf("mark lookup completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lookup.ErrNotFound
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, at time.Time, code, message string) error {
	query := `
		UPDATE lookup_jobs
		SET status = $1, finished_at = $2, error_code = $3, error_message = $4
		WHERE id = $5`
	tag, err := s.pool.Exec(ctx, query, string(lookup.StatusFailed), at, code, message, jobID)
	if err != nil {
		return fmt.Errorf("mark lookup failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lookup.ErrNotFound
	}
	return nil
}

const jobColumns = `id, hackathon_url, status, created_at, started_at, finished_at, error_code, error_message`

func scanJob(row pgx.Row) (lookup.Job, error) {
	var (
		job       lookup.Job
		status    string
		errCode   *string
		errMsg    *string
		startedAt *time.Time
		finished  *time.Time
	)
	err := row.Scan(
		&job.ID,
		&job.HackathonURL,
		&status,
		&job.CreatedAt,
		&startedAt,
		&finished,
		&errCode,
		&errMsg,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lookup.Job{}, lookup.ErrNotFound
		}
		return lookup.Job{}, fmt.Errorf("scan lookup job: %w", err)
	}
	job.Status = lookup.Status(status)
	job.StartedAt = startedAt
	job.FinishedAt = finished
	if errCode != nil {
		job.Error = &lookup.JobError{Code: *errCode}
		if errMsg != nil {
			job.Error.Message = *errMsg
		}
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (lookup.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM lookup_jobs WHERE id = $1`
	return scanJob(s.pool.QueryRow(ctx, query, jobID))
}

func (s *Store) FindActiveJobByURL(ctx context.Context, hackathonURL string) (lookup.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM lookup_jobs
		WHERE hackathon_url = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1`
	return scanJob(s.pool.QueryRow(ctx, query, hackathonURL,
		string(lookup.StatusQueued), string(lookup.StatusStarted)))
}

func (s *Store) FindRecentCompletedByURL(ctx context.Context, hackathonURL string, finishedSince time.Time) (lookup.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM lookup_jobs
		WHERE hackathon_url = $1 AND status = $2 AND finished_at >= $3
		ORDER BY finished_at DESC
		LIMIT 1`
	return scanJob(s.pool.QueryRow(ctx, query, hackathonURL,
		string(lookup.StatusCompleted), finishedSince))
}

func (s *Store) ListPendingJobIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT id
		FROM lookup_jobs
		WHERE status IN ($1, $2)
		ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query,
		string(lookup.StatusQueued), string(lookup.StatusStarted))
	if err != nil {
		return nil, fmt.Errorf("list pending lookups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending lookup id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending lookups: %w", err)
	}
	return ids, nil
}

func (s *Store) SaveResult(ctx context.Context, jobID string, result *devpost.CrawlResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal crawl result: %w", err)
	}
	query := `
		INSERT INTO lookup_results (lookup_id, result, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (lookup_id) DO UPDATE
		SET result = EXCLUDED.result, generated_at = EXCLUDED.generated_at`
	if _, err := s.pool.Exec(ctx, query, jobID, payload, result.GeneratedAt); err != nil {
		return fmt.Errorf("upsert crawl result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, jobID string) (*devpost.CrawlResult, error) {
	query := `SELECT result FROM lookup_results WHERE lookup_id = $1`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, jobID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lookup.ErrNotFound
		}
		return nil, fmt.Errorf("get crawl result: %w", err)
	}
	var result devpost.CrawlResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal crawl result: %w", err)
	}
	return &result, nil
}

func (s *Store) AppendEvent(ctx context.Context, jobID string, event lookup.Event) (lookup.Event, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return lookup.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	query := `
		INSERT INTO lookup_progress_events (lookup_id, event_type, occurred_at, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := s.pool.QueryRow(ctx, query, jobID, event.Type, event.Timestamp, payload).Scan(&event.Seq); err != nil {
		return lookup.Event{}, fmt.Errorf("insert progress event: %w", err)
	}
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context, jobID string) ([]lookup.Event, error) {
	query := `
		SELECT id, event_type, occurred_at, payload
		FROM lookup_progress_events
		WHERE lookup_id = $1
		ORDER BY id`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list progress events: %w", err)
	}
	defer rows.Close()

	var events []lookup.Event
	for rows.Next() {
		var (
			event   lookup.Event
			payload []byte
		)
		if err := rows.Scan(&event.Seq, &event.Type, &event.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan progress event: %w", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		event.Payload = decoded
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress events: %w", err)
	}
	return events, nil
}

func (s *Store) RecordRateLimitEvent(ctx context.Context, ipHash, endpoint string, at time.Time) error {
	query := `
		INSERT INTO rate_limit_events (ip_hash, endpoint, created_at)
		VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, ipHash, endpoint, at); err != nil {
		return fmt.Errorf("record rate-limit event: %w", err)
	}
	return nil
}

func (s *Store) CountRateLimitEvents(ctx context.Context, ipHash, endpoint string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM rate_limit_events
		WHERE ip_hash = $1 AND endpoint = $2 AND created_at >= $3`
	var count int
	if err := s.pool.QueryRow(ctx, query, ipHash, endpoint, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate-limit events: %w", err)
	}
	return count, nil
}
