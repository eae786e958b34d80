package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFillsDefaults(t *testing.T) {
	q := NewQueue(4, 1)
	defer q.Close()

	job := &IngestJob{Kind: KindStatementFile, UserID: "u1"}
	require.NoError(t, q.Publish(context.Background(), job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, defaultMaxRetries, job.MaxRetries)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestQueueProcessesJobs(t *testing.T) {
	q := NewQueue(8, 2)
	defer q.Close()

	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 3)

	err := q.Start(context.Background(), func(ctx context.Context, job *IngestJob) error {
		mu.Lock()
		seen[job.UserID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	for _, user := range []string{"u1", "u2", "u3"} {
		require.NoError(t, q.Publish(context.Background(), &IngestJob{Kind: KindStatementFile, UserID: user}))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	q := NewQueue(8, 1)
	defer q.Close()

	var attempts atomic.Int32
	err := q.Start(context.Background(), func(ctx context.Context, job *IngestJob) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)

	job := &IngestJob{Kind: KindEmailSweep, UserID: "u1", MaxRetries: 2}
	require.NoError(t, q.Publish(context.Background(), job))

	assert.Eventually(t, func() bool {
		return attempts.Load() == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestQueueStopsRetryingAtBudget(t *testing.T) {
	q := NewQueue(8, 1)
	defer q.Close()

	var attempts atomic.Int32
	err := q.Start(context.Background(), func(ctx context.Context, job *IngestJob) error {
		attempts.Add(1)
		return errors.New("permanent")
	})
	require.NoError(t, err)

	job := &IngestJob{Kind: KindStatementFile, UserID: "u1", MaxRetries: 1}
	require.NoError(t, q.Publish(context.Background(), job))

	// First attempt plus one retry, then the budget is spent.
	assert.Eventually(t, func() bool {
		return attempts.Load() == 2
	}, 5*time.Second, 50*time.Millisecond)

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestPublishAfterCloseFails(t *testing.T) {
	q := NewQueue(1, 1)
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), &IngestJob{Kind: KindStatementFile})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestStopWaitsForInFlight(t *testing.T) {
	q := NewQueue(1, 1)

	started := make(chan struct{})
	var finished atomic.Bool

	err := q.Start(context.Background(), func(ctx context.Context, job *IngestJob) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, q.Publish(context.Background(), &IngestJob{Kind: KindStatementFile}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
	assert.True(t, finished.Load())
}
