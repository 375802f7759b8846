package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"fileconverter/formats"
	"fileconverter/models"
	"fileconverter/services"
)

// ArtifactStore is the slice of artifact storage the executor needs.
type ArtifactStore interface {
	Download(ctx context.Context, key string, jobID string, extension string) (string, error)
	Upload(ctx context.Context, localPath string, key string) error
	Delete(ctx context.Context, key string) error
	Cleanup(path string) error
}

// Executor resolves a job's converter, runs it and durably stores the
// output artifact. It owns temp-file hygiene: every exit path removes
// local intermediates.
type Executor struct {
	store      ArtifactStore
	converters map[formats.Capability]formats.ConvertFunc
}

func NewExecutor(store ArtifactStore, converters map[formats.Capability]formats.ConvertFunc) *Executor {
	return &Executor{store: store, converters: converters}
}

// Result is the terminal outcome of one successful execution.
type Result struct {
	ConvertedKey  string
	ConvertedSize int64
}

// Execute runs the conversion for a job. Progress lands at the
// callback after the converter is resolved (30) and after it returns
// (70); the scheduler owns 10 and 100.
func (e *Executor) Execute(ctx context.Context, job *models.Job, progress func(int)) (*Result, error) {
	// Unsupported pairs must fail before any I/O happens.
	capability, err := formats.Resolve(job.OriginalFormat, job.TargetFormat)
	if err != nil {
		return nil, err
	}

	convert, ok := e.converters[capability]
	if !ok {
		return nil, fmt.Errorf("%w: no %s converter capability available", models.ErrConverterFailure, capability)
	}

	sourcePath, err := e.store.Download(ctx, job.OriginalFile, job.ID, job.OriginalFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: source download: %v", models.ErrStorageFailure, err)
	}
	defer e.store.Cleanup(sourcePath)

	progress(30)

	outputPath, err := convert(ctx, sourcePath, job.TargetFormat)
	if outputPath != "" {
		defer e.store.Cleanup(outputPath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConverterFailure, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s to %s", models.ErrEmptyOutput, job.OriginalFormat, job.TargetFormat)
	}

	progress(70)

	convertedKey := services.ConvertedKey(job.ID, job.TargetFormat, time.Now())
	if err := e.store.Upload(ctx, outputPath, convertedKey); err != nil {
		return nil, fmt.Errorf("%w: artifact upload: %v", models.ErrStorageFailure, err)
	}

	return &Result{ConvertedKey: convertedKey, ConvertedSize: info.Size()}, nil
}
