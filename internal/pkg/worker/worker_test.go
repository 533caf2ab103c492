package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRetry(t *testing.T) {
	pool := NewWorkerPool(2, 10, 3)
	pool.RetryDelay = time.Millisecond
	pool.Start()

	var attempts int32
	done := make(chan struct{})
	pool.AddTask(Func("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("broker unavailable")
		}
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not succeed after retries")
	}

	assert.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestWorkerPoolGivesUp(t *testing.T) {
	pool := NewWorkerPool(1, 10, 1)
	pool.RetryDelay = time.Millisecond
	pool.Start()

	var attempts int32
	pool.AddTask(Func("always-fails", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("nope")
	}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 2 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestAddTaskAfterStop(t *testing.T) {
	pool := NewWorkerPool(1, 1, 0)
	pool.Start()
	assert.NoError(t, pool.Stop(context.Background()))

	assert.False(t, pool.AddTask(Func("late", func(ctx context.Context) error { return nil })))
}
