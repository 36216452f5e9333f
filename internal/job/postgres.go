package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Compile-time check that PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

// uniqueViolation is the Postgres error code for duplicate primary keys.
const uniqueViolation = "23505"

// jobColumns is the column list shared by every SELECT against the jobs
// table. Keep it in sync with scanJob.
const jobColumns = `id, user_id, title, status, stage, progress, source_key,
	original_filename, content_type, size_bytes, segment_policy, text_policy,
	remote_render, video_duration, output_keys, error_message,
	created_at, updated_at, started_at, completed_at`

// PostgresRepository is a Postgres-backed implementation of Repository.
// It is the production store: jobs written by the API process are visible
// to worker processes and survive restarts of both.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository on top of an open database
// handle. The caller owns the handle and its lifecycle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists a new job. Returns ErrJobExists if the ID is taken.
func (r *PostgresRepository) Create(ctx context.Context, job *Job) error {
	j := job.Clone()

	segmentPolicy, err := json.Marshal(j.SegmentPolicy)
	if err != nil {
		return fmt.Errorf("encode segment policy: %w", err)
	}
	textPolicy, err := json.Marshal(j.TextPolicy)
	if err != nil {
		return fmt.Errorf("encode text policy: %w", err)
	}
	outputKeys, err := json.Marshal(j.OutputKeys)
	if err != nil {
		return fmt.Errorf("encode output keys: %w", err)
	}

	query := `INSERT INTO jobs (id, user_id, title, status, stage, progress,
		source_key, original_filename, content_type, size_bytes,
		segment_policy, text_policy, remote_render, video_duration,
		output_keys, error_message, created_at, updated_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = r.db.ExecContext(ctx, query,
		j.ID, j.UserID, j.Title, string(j.Status), string(j.Stage), j.Progress,
		j.SourceKey, j.OriginalFilename, j.ContentType, j.SizeBytes,
		segmentPolicy, textPolicy, j.RemoteRender, j.VideoDuration,
		outputKeys, j.Error, j.CreatedAt, j.UpdatedAt,
		nullableTime(j.StartedAt), nullableTime(j.CompletedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update persists the mutable state of an existing job. Creation metadata
// (user, policies, source key) never changes after Create and is not
// rewritten here.
func (r *PostgresRepository) Update(ctx context.Context, job *Job) error {
	j := job.Clone()

	outputKeys, err := json.Marshal(j.OutputKeys)
	if err != nil {
		return fmt.Errorf("encode output keys: %w", err)
	}

	query := `UPDATE jobs SET status = $2, stage = $3, progress = $4,
		video_duration = $5, output_keys = $6, error_message = $7,
		updated_at = $8, started_at = $9, completed_at = $10
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		j.ID, string(j.Status), string(j.Stage), j.Progress,
		j.VideoDuration, outputKeys, j.Error,
		j.UpdatedAt, nullableTime(j.StartedAt), nullableTime(j.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FindByID retrieves a job by its unique identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

// Claim transitions a QUEUED job to PROCESSING with a conditional write,
// so two workers racing for the same job cannot both succeed.
func (r *PostgresRepository) Claim(ctx context.Context, id string) (*Job, error) {
	now := nowUTC()
	query := `UPDATE jobs SET status = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, id, string(StatusProcessing), now, string(StatusQueued))
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if n == 0 {
		// Missing job and lost race look the same to the UPDATE;
		// a read tells them apart.
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotClaimable
	}
	return r.FindByID(ctx, id)
}

// List returns all jobs, most recently created first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job from storage.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanJob reads one row in jobColumns order into a Job.
func scanJob(row scanner) (*Job, error) {
	var (
		j             Job
		status, stage string
		segmentPolicy []byte
		textPolicy    []byte
		outputKeys    []byte
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := row.Scan(&j.ID, &j.UserID, &j.Title, &status, &stage, &j.Progress,
		&j.SourceKey, &j.OriginalFilename, &j.ContentType, &j.SizeBytes,
		&segmentPolicy, &textPolicy, &j.RemoteRender, &j.VideoDuration,
		&outputKeys, &j.Error, &j.CreatedAt, &j.UpdatedAt,
		&startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = Status(status)
	j.Stage = Stage(stage)
	if err := json.Unmarshal(segmentPolicy, &j.SegmentPolicy); err != nil {
		return nil, fmt.Errorf("decode segment policy: %w", err)
	}
	if err := json.Unmarshal(textPolicy, &j.TextPolicy); err != nil {
		return nil, fmt.Errorf("decode text policy: %w", err)
	}
	if err := json.Unmarshal(outputKeys, &j.OutputKeys); err != nil {
		return nil, fmt.Errorf("decode output keys: %w", err)
	}
	if j.OutputKeys == nil {
		j.OutputKeys = make([]string, 0)
	}
	if startedAt.Valid {
		j.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = completedAt.Time
	}
	return &j, nil
}

// nullableTime maps the zero time to NULL so unstarted jobs do not carry
// a bogus year-one timestamp.
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
