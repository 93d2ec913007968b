package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses a Go channel for job distribution and is safe for concurrent use.
// A single worker drains the channel, so documents are extracted one at a
// time in submission order.
type Queue struct {
	jobChan   chan *jobs.ExtractDocumentJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
	started   bool
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishExtractDocument blocks.
func NewQueue(bufferSize int, store jobs.JobStore) *Queue {
	return &Queue{
		jobChan:   make(chan *jobs.ExtractDocumentJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
	}
}

// PublishExtractDocument implements the Publisher interface.
// It enqueues a document extraction job for asynchronous processing.
func (q *Queue) PublishExtractDocument(ctx context.Context, job *jobs.ExtractDocumentJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	job.Status = jobs.JobStatusPending
	job.Error = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	// The worker gets its own copy so the caller may keep reading job.
	work := *job
	select {
	case q.jobChan <- &work:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
// It starts the single worker that processes jobs with the provided handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	if q.started {
		return fmt.Errorf("queue already started")
	}
	q.started = true

	q.wg.Add(1)
	go q.worker(ctx, handler)
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs the handler once and records the outcome.
func (q *Queue) processJob(ctx context.Context, job *jobs.ExtractDocumentJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("filename", job.Filename).
		Logger()

	job.Status = jobs.JobStatusProcessing
	now := time.Now()
	job.StartedAt = &now
	assigned := job.AssignedAccount
	if err := q.record(ctx, job, assigned); err != nil {
		log.Error().Err(err).Msg("failed to save job state")
	}
	assigned = job.AssignedAccount

	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	if err != nil {
		job.Status = jobs.JobStatusError
		job.Error = apperror.UserMessage(err)
		log.Error().Err(err).Msg("job failed")
	} else {
		job.Status = jobs.JobStatusDone
		job.Error = ""
		log.Info().Dur("elapsed", completedAt.Sub(now)).Msg("job done")
	}

	if err := q.record(ctx, job, assigned); err != nil {
		log.Error().Err(err).Msg("failed to save job result")
	}
}

// record stores the worker's view of job. An account assigned in the store
// after the worker read assigned takes precedence over the worker's value.
func (q *Queue) record(ctx context.Context, job *jobs.ExtractDocumentJob, assigned string) error {
	if q.store == nil {
		return nil
	}
	_, err := q.store.UpdateJob(ctx, job.JobID, func(stored *jobs.ExtractDocumentJob) error {
		if stored.AssignedAccount != assigned {
			job.AssignedAccount = stored.AssignedAccount
		}
		*stored = *job
		return nil
	})
	return err
}

// Stop implements the Consumer interface.
// It stops the queue and waits for the in-flight job to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
