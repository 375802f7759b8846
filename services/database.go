package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"fileconverter/models"
)

// DatabaseService is the single source of truth for job identity and
// state. All mutations are atomic, last-writer-wins updates keyed by
// job id; jobs are independent so no cross-job locking exists.
type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

const jobColumns = `id, original_file, converted_file, original_filename, original_format,
	target_format, conversion_type, status, error_message, file_size,
	converted_file_size, created_at, updated_at, completed_at, task_id`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.Job, error) {
	var j models.Job
	err := row.Scan(
		&j.ID, &j.OriginalFile, &j.ConvertedFile, &j.OriginalFilename, &j.OriginalFormat,
		&j.TargetFormat, &j.ConversionType, &j.Status, &j.ErrorMessage, &j.FileSize,
		&j.ConvertedFileSize, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt, &j.TaskID,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (d *DatabaseService) CreateJob(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO file_conversions
		(id, original_file, original_filename, original_format, target_format,
		 conversion_type, status, file_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := d.db.ExecContext(ctx, query,
		job.ID, job.OriginalFile, job.OriginalFilename, job.OriginalFormat,
		job.TargetFormat, job.ConversionType, job.Status, job.FileSize,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (d *DatabaseService) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM file_conversions WHERE id = $1`
	job, err := scanJob(d.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return job, nil
}

func (d *DatabaseService) ListRecent(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM file_conversions ORDER BY created_at DESC LIMIT $1`
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkProcessing converts a worker's queue claim into authoritative
// in-flight state.
func (d *DatabaseService) MarkProcessing(ctx context.Context, jobID string) error {
	query := `UPDATE file_conversions SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := d.db.ExecContext(ctx, query, models.StatusProcessing, time.Now(), jobID)
	return err
}

// CompleteJob commits the terminal completed state in a single atomic
// update: artifact key, output size and completion timestamp land
// together or not at all. A since-deleted record is a benign lost
// update, not an error.
func (d *DatabaseService) CompleteJob(ctx context.Context, jobID string, convertedKey string, convertedSize int64) error {
	now := time.Now()
	query := `UPDATE file_conversions
		SET status = $1, converted_file = $2, converted_file_size = $3,
		    completed_at = $4, updated_at = $4, error_message = NULL
		WHERE id = $5`
	_, err := d.db.ExecContext(ctx, query, models.StatusCompleted, convertedKey, convertedSize, now, jobID)
	return err
}

// FailJob commits the terminal failed state after retries are exhausted.
func (d *DatabaseService) FailJob(ctx context.Context, jobID string, errorMsg string) error {
	query := `UPDATE file_conversions
		SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`
	_, err := d.db.ExecContext(ctx, query, models.StatusFailed, errorMsg, time.Now(), jobID)
	return err
}

// RecordError stores the most recent attempt's error without touching
// the status. Best-effort: callers must not let a recording failure
// mask the original error.
func (d *DatabaseService) RecordError(ctx context.Context, jobID string, errorMsg string) error {
	query := `UPDATE file_conversions SET error_message = $1, updated_at = $2 WHERE id = $3`
	_, err := d.db.ExecContext(ctx, query, errorMsg, time.Now(), jobID)
	return err
}

func (d *DatabaseService) SetTaskID(ctx context.Context, jobID string, taskID string) error {
	query := `UPDATE file_conversions SET task_id = $1, updated_at = $2 WHERE id = $3`
	_, err := d.db.ExecContext(ctx, query, taskID, time.Now(), jobID)
	return err
}

func (d *DatabaseService) DeleteJob(ctx context.Context, jobID string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM file_conversions WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	return nil
}

// ListOlderThan returns every job created before the cutoff regardless
// of status. Used by the retention sweeper.
func (d *DatabaseService) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM file_conversions WHERE created_at < $1`
	rows, err := d.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}
