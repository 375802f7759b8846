package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fileconverter/models"
)

// fakeArtifacts is an in-memory ArtifactStore backed by a temp dir for
// local files.
type fakeArtifacts struct {
	mu        sync.Mutex
	objects   map[string][]byte
	tempDir   string
	deleted   []string
	downloads int
	uploadErr error
	deleteErr error
}

func newFakeArtifacts(tempDir string) *fakeArtifacts {
	return &fakeArtifacts{objects: map[string][]byte{}, tempDir: tempDir}
}

func (f *fakeArtifacts) Download(ctx context.Context, key string, jobID string, extension string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	data, ok := f.objects[key]
	if !ok {
		return "", fmt.Errorf("no such object: %s", key)
	}
	path := filepath.Join(f.tempDir, fmt.Sprintf("%s.%s", jobID, extension))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeArtifacts) Upload(ctx context.Context, localPath string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeArtifacts) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeArtifacts) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	return os.Remove(path)
}

func (f *fakeArtifacts) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

// fakeStore is an in-memory job record store covering JobStore and
// SweeperStore.
type fakeStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	deleted []string
	delErr  map[string]error
}

func newFakeStore(jobs ...*models.Job) *fakeStore {
	s := &fakeStore{jobs: map[string]*models.Job{}, delErr: map[string]error{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	clone := *job
	return &clone, nil
}

func (s *fakeStore) MarkProcessing(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Status = models.StatusProcessing
		job.UpdatedAt = time.Now()
	}
	return nil
}

func (s *fakeStore) CompleteJob(ctx context.Context, jobID string, convertedKey string, convertedSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil // benign lost update
	}
	job.Status = models.StatusCompleted
	job.ConvertedFile.String = convertedKey
	job.ConvertedFile.Valid = true
	job.ConvertedFileSize.Int64 = convertedSize
	job.ConvertedFileSize.Valid = true
	job.CompletedAt.Time = time.Now()
	job.CompletedAt.Valid = true
	return nil
}

func (s *fakeStore) FailJob(ctx context.Context, jobID string, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	job.Status = models.StatusFailed
	job.ErrorMessage.String = errorMsg
	job.ErrorMessage.Valid = true
	return nil
}

func (s *fakeStore) RecordError(ctx context.Context, jobID string, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.ErrorMessage.String = errorMsg
		job.ErrorMessage.Valid = true
	}
	return nil
}

func (s *fakeStore) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, j := range s.jobs {
		if j.CreatedAt.Before(cutoff) {
			clone := *j
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.delErr[jobID]; err != nil {
		return err
	}
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	delete(s.jobs, jobID)
	s.deleted = append(s.deleted, jobID)
	return nil
}

func (s *fakeStore) job(jobID string) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		clone := *job
		return &clone
	}
	return nil
}

// fakeQueue records pushes, delayed pushes and acks; Claim is not used
// in tests, which drive processJob directly.
type fakeQueue struct {
	mu       sync.Mutex
	pushed   []models.QueueMessage
	delayed  []delayedMessage
	acked    []string
	inFlight []ClaimedEntry
	delayErr error
}

type delayedMessage struct {
	msg       models.QueueMessage
	notBefore time.Time
}

func (q *fakeQueue) Claim(ctx context.Context) (string, error) { return "", nil }

func (q *fakeQueue) Ack(raw string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, raw)
}

func (q *fakeQueue) Push(ctx context.Context, msg models.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, msg)
	return nil
}

func (q *fakeQueue) PushDelayed(ctx context.Context, msg models.QueueMessage, notBefore time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.delayErr != nil {
		return q.delayErr
	}
	q.delayed = append(q.delayed, delayedMessage{msg: msg, notBefore: notBefore})
	return nil
}

func (q *fakeQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	promoted := 0
	var remaining []delayedMessage
	for _, d := range q.delayed {
		if d.notBefore.After(now) {
			remaining = append(remaining, d)
			continue
		}
		q.pushed = append(q.pushed, d.msg)
		promoted++
	}
	q.delayed = remaining
	return promoted, nil
}

func (q *fakeQueue) InFlight(ctx context.Context) ([]ClaimedEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ClaimedEntry(nil), q.inFlight...), nil
}

func (q *fakeQueue) pushedMessages() []models.QueueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.QueueMessage(nil), q.pushed...)
}

func (q *fakeQueue) delayedMessages() []delayedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]delayedMessage(nil), q.delayed...)
}

func (q *fakeQueue) ackedEntries() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

// fakePublisher records events in publication order.
type fakePublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *fakePublisher) Publish(evt models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *fakePublisher) all() []models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ProgressEvent(nil), p.events...)
}
