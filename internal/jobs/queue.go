package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spendsense/backend/internal/logger"
)

// ErrQueueClosed is returned by Publish once the queue has shut down.
var ErrQueueClosed = errors.New("job queue is closed")

const defaultMaxRetries = 3

// Queue is a channel-backed in-process job queue. It is safe for concurrent
// use and fits single-instance deployments; a multi-instance setup would
// swap in a broker behind the same Publisher/Consumer interfaces.
type Queue struct {
	jobChan   chan *IngestJob
	closeChan chan struct{}
	workers   int
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
}

// NewQueue builds a queue. bufferSize bounds how many jobs wait before
// Publish blocks; workers is the consumer pool size.
func NewQueue(bufferSize, workers int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan *IngestJob, bufferSize),
		closeChan: make(chan struct{}),
		workers:   workers,
	}
}

// Publish enqueues a job, filling in defaults for ID, status, and retry
// budget. Blocks when the buffer is full until there is room, the context
// is cancelled, or the queue closes.
func (q *Queue) Publish(ctx context.Context, job *IngestJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start launches the worker pool. Workers run until the context is
// cancelled or the queue is stopped.
func (q *Queue) Start(ctx context.Context, handler Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
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
			q.process(ctx, job, handler)
		}
	}
}

// process runs one attempt. A failed attempt with retry budget left is
// re-published after a linear backoff.
func (q *Queue) process(ctx context.Context, job *IngestJob, handler Handler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).Str("kind", string(job.Kind)).Logger()

	job.Status = StatusRunning
	now := time.Now()
	job.StartedAt = &now

	err := handler(ctx, job)

	done := time.Now()
	job.CompletedAt = &done

	if err == nil {
		job.Status = StatusCompleted
		job.Error = ""
		return
	}

	job.Error = err.Error()
	if job.RetryCount >= job.MaxRetries {
		job.Status = StatusFailed
		log.Error().Err(err).Int("attempts", job.RetryCount+1).Msg("job exhausted retries")
		return
	}

	job.RetryCount++
	job.Status = StatusRetrying
	log.Warn().Err(err).Int("retry", job.RetryCount).Msg("job attempt failed, retrying")

	backoff := time.Duration(job.RetryCount) * time.Second
	time.AfterFunc(backoff, func() {
		job.Status = StatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if perr := q.Publish(ctx, job); perr != nil {
			log.Error().Err(perr).Msg("re-enqueue for retry failed")
		}
	})
}

// Stop closes the queue and waits for in-flight jobs, bounded by ctx.
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

// Close implements Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ Publisher = (*Queue)(nil)
var _ Consumer = (*Queue)(nil)
