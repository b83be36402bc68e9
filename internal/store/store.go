package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ JobReader   = (*Store)(nil)
	_ JobWriter   = (*Store)(nil)
	_ JobClaimer  = (*Store)(nil)
	_ JobReporter = (*Store)(nil)
	_ JobExpirer  = (*Store)(nil)
)

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 2

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: jobs table
		s.migrateV2, // v1 → v2: finished_at for output retention
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) migrateV1() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		user_address TEXT NOT NULL,
		status       TEXT NOT NULL,
		payload      TEXT NOT NULL,
		result       TEXT,
		error_info   TEXT,
		dir          TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_user ON jobs(user_address, created_at DESC);
	`)
	return err
}

// migrateV2 tracks when a job reached a terminal status, so retention is
// measured from completion rather than submission.
func (s *Store) migrateV2() error {
	if _, err := s.db.Exec(`ALTER TABLE jobs ADD COLUMN finished_at TEXT`); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE jobs SET finished_at = updated_at WHERE status IN (?, ?)`,
		model.StatusCompleted, model.StatusFailed)
	return err
}

const jobColumns = `id, user_address, status, payload, result, error_info, dir, created_at, updated_at`

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// CreateJob inserts a new job.
func (s *Store) CreateJob(ctx context.Context, job model.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserAddress, job.Status, job.Payload, job.Result, job.ErrorInfo,
		job.Dir, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// GetJob returns a job by id. It returns sql.ErrNoRows if there is none.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(ctx context.Context, f model.JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any

	if len(f.Status) > 0 {
		placeholders := make([]string, len(f.Status))
		for i, st := range f.Status {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY created_at DESC, id"

	return s.queryJobs(ctx, query, args...)
}

// UpdateJobStatus moves a job to newStatus, storing result and errorInfo.
// The move only happens from a status model.AllowedFrom permits; otherwise it
// returns model.ErrInvalidTransition, or sql.ErrNoRows for an unknown id.
func (s *Store) UpdateJobStatus(ctx context.Context, id, newStatus string, result, errorInfo *string) error {
	from := model.AllowedFrom(newStatus)
	if len(from) == 0 {
		return fmt.Errorf("%w: no transition into %s", model.ErrInvalidTransition, newStatus)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var finishedAt *string
	if newStatus == model.StatusCompleted || newStatus == model.StatusFailed {
		finishedAt = &now
	}

	placeholders := make([]string, len(from))
	args := []any{newStatus, result, errorInfo, now, finishedAt, id}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = COALESCE(?, result), error_info = COALESCE(?, error_info),
			updated_at = ?, finished_at = COALESCE(?, finished_at)
		WHERE id = ? AND status IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := job.ValidateTransition(newStatus); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s changed status concurrently", model.ErrInvalidTransition, id)
}

// ClaimNextPending atomically picks the oldest PENDING job and sets it to RUNNING.
// Returns nil if no job is available.
func (s *Store) ClaimNextPending(ctx context.Context) (*model.Job, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, id LIMIT 1)
		RETURNING `+jobColumns,
		model.StatusRunning, now, model.StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ResetStaleRunning resets any RUNNING jobs back to PENDING (for server restart).
func (s *Store) ResetStaleRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		model.StatusPending, now, model.StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Report marks a running job COMPLETED with its result.
func (s *Store) Report(ctx context.Context, id string, result model.JobResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	payload := string(b)
	return s.UpdateJobStatus(ctx, id, model.StatusCompleted, &payload, nil)
}

// ReportFailure marks a job FAILED with its error info.
func (s *Store) ReportFailure(ctx context.Context, id string, info model.ErrorInfo) error {
	payload := info.ToJSON()
	return s.UpdateJobStatus(ctx, id, model.StatusFailed, nil, &payload)
}

// ListExpired returns COMPLETED and FAILED jobs that finished before the
// given time, oldest first.
func (s *Store) ListExpired(ctx context.Context, before time.Time) ([]model.Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?
		ORDER BY finished_at ASC`,
		model.StatusCompleted, model.StatusFailed, before.UTC().Format(time.RFC3339),
	)
}

// MarkExpired records that a finished job's output has been removed.
func (s *Store) MarkExpired(ctx context.Context, id string) error {
	return s.UpdateJobStatus(ctx, id, model.StatusExpired, nil, nil)
}

// CountByStatus returns the number of jobs in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	err := row.Scan(&job.ID, &job.UserAddress, &job.Status, &job.Payload, &job.Result, &job.ErrorInfo,
		&job.Dir, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
