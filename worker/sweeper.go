package worker

import (
	"context"
	"log"
	"time"

	"fileconverter/models"
)

// SweeperStore is the slice of the job record store the sweeper needs.
type SweeperStore interface {
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// Sweeper reclaims expired jobs and their artifacts. Age is measured
// from creation and status is ignored: a failed job ages out the same
// way a completed one does.
type Sweeper struct {
	store     SweeperStore
	artifacts ArtifactStore
}

func NewSweeper(store SweeperStore, artifacts ArtifactStore) *Sweeper {
	return &Sweeper{store: store, artifacts: artifacts}
}

// Sweep removes every job created more than maxAgeDays ago, along with
// its source and output artifacts, and returns the count of fully
// reclaimed jobs. Per-job failures are logged and do not abort the
// rest of the sweep. Missing artifacts are not errors.
func (s *Sweeper) Sweep(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	jobs, err := s.store.ListOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, job := range jobs {
		if job.OriginalFile != "" {
			if err := s.artifacts.Delete(ctx, job.OriginalFile); err != nil {
				log.Printf("[Sweeper] Failed to delete source artifact for job %s: %v", job.ID, err)
			}
		}
		if job.ConvertedFile.Valid && job.ConvertedFile.String != "" {
			if err := s.artifacts.Delete(ctx, job.ConvertedFile.String); err != nil {
				log.Printf("[Sweeper] Failed to delete output artifact for job %s: %v", job.ID, err)
			}
		}

		if err := s.store.DeleteJob(ctx, job.ID); err != nil {
			log.Printf("[Sweeper] Failed to delete job %s: %v", job.ID, err)
			continue
		}
		reclaimed++
	}

	return reclaimed, nil
}

// SweepLoop runs Sweep on a fixed interval until the context ends.
func (s *Sweeper) SweepLoop(ctx context.Context, interval time.Duration, maxAgeDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] Starting retention sweep loop (every %v, max age %d days)", interval, maxAgeDays)

	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] Shutting down")
			return
		case <-ticker.C:
			count, err := s.Sweep(ctx, maxAgeDays)
			if err != nil {
				log.Printf("[Sweeper] Sweep failed: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("[Sweeper] Reclaimed %d expired jobs", count)
			}
		}
	}
}
