package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fileconverter/formats"
	"fileconverter/models"
)

// Enqueuer hands a submitted job to the scheduler. Wired to the worker
// pool at startup.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
}

// ConversionService implements the boundary operations callers use:
// submit, status, artifact download, history and delete.
type ConversionService struct {
	store         *DatabaseService
	artifacts     *S3Service
	queue         Enqueuer
	maxUploadSize int64
}

func NewConversionService(store *DatabaseService, artifacts *S3Service, queue Enqueuer, maxUploadSize int64) *ConversionService {
	return &ConversionService{
		store:         store,
		artifacts:     artifacts,
		queue:         queue,
		maxUploadSize: maxUploadSize,
	}
}

// Submit validates the upload, stores the source artifact, creates a
// pending job and enqueues it. Validation failures surface here,
// synchronously, before any record exists.
func (c *ConversionService) Submit(ctx context.Context, file io.Reader, filename string, size int64, targetFormat string) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: empty upload", models.ErrValidation)
	}
	if size > c.maxUploadSize {
		return "", fmt.Errorf("%w: file size exceeds maximum allowed size of %dMB",
			models.ErrValidation, c.maxUploadSize/(1024*1024))
	}

	originalFormat := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	category, ok := formats.CategoryFor(originalFormat)
	if !ok {
		return "", fmt.Errorf("%w: unsupported file format: %s", models.ErrValidation, originalFormat)
	}

	targetFormat = strings.ToLower(strings.TrimSpace(targetFormat))
	if targetFormat == "" {
		return "", fmt.Errorf("%w: missing target format", models.ErrValidation)
	}
	if _, err := formats.Resolve(originalFormat, targetFormat); err != nil {
		// Reject unconvertible pairs before anything is stored.
		return "", err
	}

	now := time.Now()
	job := &models.Job{
		ID:               uuid.NewString(),
		OriginalFilename: filename,
		OriginalFormat:   originalFormat,
		TargetFormat:     targetFormat,
		ConversionType:   category,
		Status:           models.StatusPending,
		FileSize:         size,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	job.OriginalFile = SourceKey(job.ID, originalFormat, now)

	if err := c.artifacts.Put(ctx, job.OriginalFile, file); err != nil {
		return "", fmt.Errorf("%w: source upload: %v", models.ErrStorageFailure, err)
	}

	if err := c.store.CreateJob(ctx, job); err != nil {
		return "", err
	}

	msg := models.QueueMessage{JobID: job.ID, Attempt: 1, EnqueuedAt: now}
	if err := c.queue.Enqueue(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	// Execution handle, recorded best-effort after the enqueue.
	if err := c.store.SetTaskID(ctx, job.ID, uuid.NewString()); err != nil {
		log.Printf("[Jobs] Failed to record task id for job %s: %v", job.ID, err)
	}

	return job.ID, nil
}

// StatusInfo is the read model returned by GetStatus.
type StatusInfo struct {
	ID               string           `json:"id"`
	Status           models.JobStatus `json:"status"`
	OriginalFilename string           `json:"original_filename"`
	OriginalFormat   string           `json:"original_format"`
	TargetFormat     string           `json:"target_format"`
	ConversionType   string           `json:"conversion_type"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	ProcessingTime   float64          `json:"processing_time,omitempty"`
	DownloadRef      string           `json:"download_url,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
}

// GetStatus is a pure read; it succeeds whenever the job id exists.
func (c *ConversionService) GetStatus(ctx context.Context, jobID string) (*StatusInfo, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	info := &StatusInfo{
		ID:               job.ID,
		Status:           job.Status,
		OriginalFilename: job.OriginalFilename,
		OriginalFormat:   job.OriginalFormat,
		TargetFormat:     job.TargetFormat,
		ConversionType:   string(job.ConversionType),
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}

	switch job.Status {
	case models.StatusCompleted:
		info.DownloadRef = fmt.Sprintf("/api/download/%s/", job.ID)
		if job.CompletedAt.Valid {
			t := job.CompletedAt.Time
			info.CompletedAt = &t
			info.ProcessingTime = job.ProcessingTime()
		}
	case models.StatusFailed:
		// The message only; traces stay server-side.
		info.ErrorMessage = firstLine(job.ErrorMessage)
	}

	return info, nil
}

// GetArtifact streams the converted output. ErrNotReady before
// completion, ErrNotFound when the record or the stored object is gone.
func (c *ConversionService) GetArtifact(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, "", err
	}

	if job.Status != models.StatusCompleted {
		return nil, "", fmt.Errorf("%w: job %s is %s", models.ErrNotReady, jobID, job.Status)
	}
	if !job.ConvertedFile.Valid || job.ConvertedFile.String == "" {
		return nil, "", fmt.Errorf("%w: converted artifact for job %s", models.ErrNotFound, jobID)
	}

	body, err := c.artifacts.Get(ctx, job.ConvertedFile.String)
	if err != nil {
		return nil, "", err
	}

	return body, DownloadFilename(job.OriginalFilename, job.TargetFormat), nil
}

// DownloadFilename derives the user-facing name of a converted file:
// photo.jpg converted to png downloads as photo_converted.png.
func DownloadFilename(originalFilename, targetFormat string) string {
	base := strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename))
	return fmt.Sprintf("%s_converted.%s", base, strings.ToLower(targetFormat))
}

// ListRecent returns job summaries newest first.
func (c *ConversionService) ListRecent(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	return c.store.ListRecent(ctx, limit)
}

// Delete removes the record and both artifacts. Artifact deletion is
// best-effort; a missing object is not an error. A missing record is.
func (c *ConversionService) Delete(ctx context.Context, jobID string) error {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.OriginalFile != "" {
		if err := c.artifacts.Delete(ctx, job.OriginalFile); err != nil {
			log.Printf("[Jobs] Failed to delete source artifact for job %s: %v", jobID, err)
		}
	}
	if job.ConvertedFile.Valid && job.ConvertedFile.String != "" {
		if err := c.artifacts.Delete(ctx, job.ConvertedFile.String); err != nil {
			log.Printf("[Jobs] Failed to delete output artifact for job %s: %v", jobID, err)
		}
	}

	return c.store.DeleteJob(ctx, jobID)
}

func firstLine(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	if i := strings.IndexByte(s.String, '\n'); i >= 0 {
		return s.String[:i]
	}
	return s.String
}
