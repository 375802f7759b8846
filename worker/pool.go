package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"fileconverter/config"
	"fileconverter/models"
)

// JobStore is the slice of the job record store the scheduler needs.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	MarkProcessing(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, convertedKey string, convertedSize int64) error
	FailJob(ctx context.Context, jobID string, errorMsg string) error
	RecordError(ctx context.Context, jobID string, errorMsg string) error
}

// Publisher broadcasts progress events. Publication is fire-and-forget;
// it can never fail the job pipeline.
type Publisher interface {
	Publish(evt models.ProgressEvent)
}

// Pool owns the execution lifecycle: claim, dispatch, timeout, retry
// and terminal-state commit. Each job is processed by at most one
// worker at a time; the queue claim moves the entry to the in-flight
// list before any work starts.
type Pool struct {
	config    *config.Config
	queue     Queue
	store     JobStore
	executor  *Executor
	publisher Publisher
}

func NewPool(cfg *config.Config, queue Queue, store JobStore, executor *Executor, publisher Publisher) *Pool {
	return &Pool{
		config:    cfg,
		queue:     queue,
		store:     store,
		executor:  executor,
		publisher: publisher,
	}
}

// Enqueue hands a job to the worker pool.
func (p *Pool) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	return p.queue.Push(ctx, msg)
}

func (p *Pool) StartWorker(ctx context.Context, workerID int) {
	log.Printf("[Worker %d] Starting", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker %d] Shutting down", workerID)
			return
		default:
			raw, err := p.queue.Claim(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Printf("[Worker %d] Queue error: %v", workerID, err)
				time.Sleep(5 * time.Second)
				continue
			}
			if raw == "" {
				// Timeout, no jobs available
				continue
			}

			var msg models.QueueMessage
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				log.Printf("[Worker %d] Failed to parse queue message: %v", workerID, err)
				p.queue.Ack(raw)
				continue
			}

			p.processJob(ctx, workerID, msg, raw)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, workerID int, msg models.QueueMessage, raw string) {
	log.Printf("[Worker %d] Processing job %s (attempt %d/%d)", workerID, msg.JobID, msg.Attempt, p.config.MaxAttempts)

	job, err := p.store.GetJob(ctx, msg.JobID)
	if errors.Is(err, models.ErrNotFound) {
		// Record deleted between enqueue and claim. Nothing to mutate,
		// nothing to retry.
		log.Printf("[Worker %d] Job %s no longer exists, dropping", workerID, msg.JobID)
		p.queue.Ack(raw)
		return
	}
	if err != nil {
		p.handleJobFailure(ctx, workerID, msg, raw, err)
		return
	}

	if job.Status.Terminal() {
		// Duplicate delivery of an already finished job.
		log.Printf("[Worker %d] Job %s already %s, dropping", workerID, msg.JobID, job.Status)
		p.queue.Ack(raw)
		return
	}

	// The record store is authoritative for "is this job in flight".
	if err := p.store.MarkProcessing(ctx, job.ID); err != nil {
		log.Printf("[Worker %d] Failed to mark job %s processing: %v", workerID, job.ID, err)
	}
	p.publishProgress(job.ID, 10, models.StatusProcessing, "")

	timeoutCtx, cancel := context.WithTimeout(ctx, p.config.ConversionTimeout)
	defer cancel()

	startTime := time.Now()

	result, err := p.executor.Execute(timeoutCtx, job, func(pct int) {
		p.publishProgress(job.ID, pct, models.StatusProcessing, "")
	})
	if err != nil {
		p.handleJobFailure(ctx, workerID, msg, raw, err)
		return
	}

	// Terminal fields land in one atomic update; a record deleted
	// mid-flight makes this a silent lost update.
	if err := p.store.CompleteJob(ctx, job.ID, result.ConvertedKey, result.ConvertedSize); err != nil {
		log.Printf("[Worker %d] Failed to commit job %s completed: %v", workerID, job.ID, err)
	}
	p.publishProgress(job.ID, 100, models.StatusCompleted, "")
	p.queue.Ack(raw)

	log.Printf("[Worker %d] Job %s completed in %.2fs (%d bytes)",
		workerID, job.ID, time.Since(startTime).Seconds(), result.ConvertedSize)
}

func (p *Pool) handleJobFailure(ctx context.Context, workerID int, msg models.QueueMessage, raw string, cause error) {
	log.Printf("[Worker %d] Job %s attempt %d failed: %v", workerID, msg.JobID, msg.Attempt, cause)

	// Best-effort: a failure to record must not mask the original error.
	if err := p.store.RecordError(ctx, msg.JobID, cause.Error()); err != nil {
		log.Printf("[Worker %d] Failed to record error for job %s: %v", workerID, msg.JobID, err)
	}

	// The last known failure is reported promptly even when a retry is
	// about to happen; the stored status stays processing until retries
	// are exhausted.
	p.publishProgress(msg.JobID, 0, models.StatusFailed, cause.Error())

	if msg.Attempt < p.config.MaxAttempts {
		next := models.QueueMessage{
			JobID:      msg.JobID,
			Attempt:    msg.Attempt + 1,
			EnqueuedAt: time.Now(),
		}
		// The retry must be durable before the claim is released. If
		// scheduling fails, the claim stays on the in-flight list and
		// the recovery loop re-enqueues it later.
		if err := p.queue.PushDelayed(ctx, next, time.Now().Add(p.config.RetryDelay)); err != nil {
			log.Printf("[Worker %d] Failed to schedule retry for job %s: %v", workerID, msg.JobID, err)
			return
		}
		p.queue.Ack(raw)
		log.Printf("[Worker %d] Scheduled attempt %d/%d for job %s after %v",
			workerID, next.Attempt, p.config.MaxAttempts, msg.JobID, p.config.RetryDelay)
		return
	}

	if err := p.store.FailJob(ctx, msg.JobID, cause.Error()); err != nil {
		log.Printf("[Worker %d] Failed to commit job %s failed: %v", workerID, msg.JobID, err)
	}
	p.queue.Ack(raw)
	log.Printf("[Worker %d] Job %s failed permanently after %d attempts", workerID, msg.JobID, msg.Attempt)
}

func (p *Pool) publishProgress(jobID string, progress int, status models.JobStatus, errMsg string) {
	p.publisher.Publish(models.ProgressEvent{
		JobID:    jobID,
		Progress: progress,
		Status:   status,
		Error:    errMsg,
	})
}

// promoteInterval bounds how late a due retry becomes claimable again.
const promoteInterval = 5 * time.Second

// RecoveryLoop re-enqueues claims whose worker died mid-execution and
// promotes delayed retries whose hold time has passed, so the
// at-least-once contract holds across crashes.
func (p *Pool) RecoveryLoop(ctx context.Context) {
	recoverTicker := time.NewTicker(p.config.RecoveryInterval)
	defer recoverTicker.Stop()
	promoteTicker := time.NewTicker(promoteInterval)
	defer promoteTicker.Stop()

	log.Println("[Recovery] Starting stale job recovery loop")

	for {
		select {
		case <-ctx.Done():
			log.Println("[Recovery] Shutting down")
			return
		case <-promoteTicker.C:
			p.promoteDueRetries(ctx)
		case <-recoverTicker.C:
			p.recoverStaleJobs(ctx)
		}
	}
}

func (p *Pool) promoteDueRetries(ctx context.Context) {
	n, err := p.queue.PromoteDue(ctx, time.Now())
	if err != nil {
		log.Printf("[Recovery] Failed to promote due retries: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Recovery] Promoted %d due retries", n)
	}
}

func (p *Pool) recoverStaleJobs(ctx context.Context) {
	entries, err := p.queue.InFlight(ctx)
	if err != nil {
		log.Printf("[Recovery] Failed to read in-flight claims: %v", err)
		return
	}

	// Staleness is measured from the claim, not from enqueue time; a
	// message that sat in a backlog is not stale the moment a worker
	// picks it up.
	staleAfter := p.config.ConversionTimeout + time.Minute
	recovered := 0
	for _, entry := range entries {
		raw := entry.Raw

		var msg models.QueueMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			p.queue.Ack(raw)
			continue
		}

		if time.Since(entry.ClaimedAt) < staleAfter {
			continue
		}

		p.queue.Ack(raw)

		if msg.Attempt < p.config.MaxAttempts {
			next := models.QueueMessage{
				JobID:      msg.JobID,
				Attempt:    msg.Attempt + 1,
				EnqueuedAt: time.Now(),
			}
			if err := p.queue.Push(ctx, next); err != nil {
				log.Printf("[Recovery] Failed to re-enqueue job %s: %v", msg.JobID, err)
				continue
			}
			recovered++
		} else {
			errMsg := "conversion timed out"
			if err := p.store.FailJob(ctx, msg.JobID, errMsg); err != nil {
				log.Printf("[Recovery] Failed to fail job %s: %v", msg.JobID, err)
			}
			p.publishProgress(msg.JobID, 0, models.StatusFailed, errMsg)
		}
	}

	if recovered > 0 {
		log.Printf("[Recovery] Recovered %d stale jobs", recovered)
	}
}
