//go:build integration
// +build integration

package queue_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/queue"
)

// Run with: REDIS_ADDR=localhost:6379 go test -tags=integration ./internal/queue/
func newTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping integration test: REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisQueueRetriesAndDeduplicates(t *testing.T) {
	rdb := newTestRedis(t)
	var calls int32
	exhausted := make(chan *queue.Job, 1)

	q := queue.NewRedisQueue(rdb, queue.RedisOptions{
		Name:   "audit-test",
		Policy: queue.RetryPolicy{MaxAttempts: 2, BaseDelay: 10 * time.Millisecond, KeepCompleted: 5, KeepFailed: 5},
		Handler: func(ctx context.Context, job *queue.Job) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("provider quota")
		},
		OnExhausted: func(ctx context.Context, job *queue.Job, err error) { exhausted <- job },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := queue.NewJob(uuid.New())
	created, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	require.True(t, created)

	created, err = q.Enqueue(ctx, queue.NewJob(job.SessionID))
	require.NoError(t, err)
	assert.False(t, created)

	go q.Run(ctx)

	select {
	case got := <-exhausted:
		assert.Equal(t, 2, got.Attempt)
	case <-time.After(10 * time.Second):
		t.Fatal("job was not exhausted")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	state, err := q.JobState(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", state)
}

func TestRedisQueueKeepZeroDropsHistory(t *testing.T) {
	rdb := newTestRedis(t)
	done := make(chan struct{}, 1)

	q := queue.NewRedisQueue(rdb, queue.RedisOptions{
		Name:   "audit-keep0",
		Policy: queue.RetryPolicy{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond, KeepCompleted: 0, KeepFailed: 0},
		Handler: func(ctx context.Context, job *queue.Job) error {
			done <- struct{}{}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := queue.NewJob(uuid.New())
	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	go q.Run(ctx)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("job did not run")
	}

	require.Eventually(t, func() bool {
		state, err := q.JobState(ctx, job.ID)
		if err != nil || state != "" {
			return false
		}
		n, err := rdb.Exists(ctx, "queue:audit-keep0:completed").Result()
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
}
