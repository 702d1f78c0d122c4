package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Len(t, seen, 3)
	assert.Eventually(t, func() bool { return q.Stats().Processed == 3 }, time.Second, 10*time.Millisecond)
}

func TestQueueRejectsBeforeStartAndWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	require.Error(t, q.Enqueue(Job{ID: "early"}))

	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Enqueue(Job{ID: "running"}))
	require.Eventually(t, func() bool { return q.Stats().Active == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "buffered"}))

	err := q.Enqueue(Job{ID: "overflow"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, 1, q.Stats().Pending)
}

func TestQueueRetriesFailures(t *testing.T) {
	var attempts atomic.Int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("boom")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))
	assert.Eventually(t, func() bool { return attempts.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return q.Stats().Failed == 2 }, time.Second, 5*time.Millisecond)
}

func TestQueueSurvivesPanicsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	q := NewQueue("panic", func(ctx context.Context, job Job) error {
		calls.Add(1)
		if job.ID == "bad" {
			panic("unexpected")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: -1, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "bad"}))
	require.NoError(t, q.Enqueue(Job{ID: "good"}))

	assert.Eventually(t, func() bool { return q.Stats().Processed == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), q.Stats().Failed)
}
