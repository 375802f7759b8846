package models

import (
	"database/sql"
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transitions may occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ConversionType string

const (
	TypeImage    ConversionType = "image"
	TypeDocument ConversionType = "document"
	TypeVideo    ConversionType = "video"
)

// Job is one tracked conversion request. OriginalFile and ConvertedFile
// hold artifact storage keys, not local paths.
type Job struct {
	ID                string         `json:"id"`
	OriginalFile      string         `json:"original_file"`
	ConvertedFile     sql.NullString `json:"converted_file"`
	OriginalFilename  string         `json:"original_filename"`
	OriginalFormat    string         `json:"original_format"`
	TargetFormat      string         `json:"target_format"`
	ConversionType    ConversionType `json:"conversion_type"`
	Status            JobStatus      `json:"status"`
	ErrorMessage      sql.NullString `json:"error_message"`
	FileSize          int64          `json:"file_size"`
	ConvertedFileSize sql.NullInt64  `json:"converted_file_size"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CompletedAt       sql.NullTime   `json:"completed_at"`
	TaskID            sql.NullString `json:"task_id"`
}

// ProcessingTime returns wall-clock seconds from submission to
// completion, or zero if the job has not completed.
func (j *Job) ProcessingTime() float64 {
	if !j.CompletedAt.Valid {
		return 0
	}
	return j.CompletedAt.Time.Sub(j.CreatedAt).Seconds()
}

func (j *Job) FileSizeMB() float64 {
	return float64(j.FileSize) / (1024 * 1024)
}

// ProgressEvent is an ephemeral broadcast describing a job's execution
// state. Events are published, never stored; late subscribers miss
// anything emitted before they joined.
type ProgressEvent struct {
	JobID    string    `json:"conversion_id"`
	Progress int       `json:"progress"`
	Status   JobStatus `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// QueueMessage is the payload pushed onto the Redis work queue. Attempt
// counts executions including the current one, starting at 1.
type QueueMessage struct {
	JobID      string    `json:"jobId"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}
