package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveJob(queue, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, queue+":"+outcome)
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	attempts := make(chan int, 4)
	obs := &recordingObserver{}
	q := NewQueue("plans", func(_ context.Context, job Job) error {
		attempts <- job.Attempt
		if job.Attempt < 2 {
			return fmt.Errorf("storage unavailable")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond, Observer: obs})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "run-1"}))
	for want := 0; want <= 2; want++ {
		select {
		case got := <-attempts:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d not delivered", want)
		}
	}
	require.Eventually(t, func() bool { return len(obs.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"plans:retry", "plans:retry", "plans:success"}, obs.snapshot())
}

func TestQueuePermanentFailureSkipsRetry(t *testing.T) {
	calls := make(chan struct{}, 4)
	obs := &recordingObserver{}
	q := NewQueue("plans", func(context.Context, Job) error {
		calls <- struct{}{}
		return fmt.Errorf("bad workbook: %w", ErrPermanent)
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond, Observer: obs})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "run-2"}))
	<-calls
	require.Eventually(t, func() bool { return len(obs.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"plans:failed"}, obs.snapshot())
	select {
	case <-calls:
		t.Fatal("permanent failure was retried")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueJobTimeout(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue("plans", func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		done <- ctx.Err()
		return fmt.Errorf("cancelled: %w", ErrPermanent)
	}, QueueConfig{JobTimeout: 20 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "slow"}))
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	case <-time.After(2 * time.Second):
		t.Fatal("job timeout not applied")
	}
}

func TestQueuePerJobTimeoutOverridesDefault(t *testing.T) {
	budgets := make(chan time.Duration, 1)
	q := NewQueue("plans", func(ctx context.Context, _ Job) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		budgets <- time.Until(deadline)
		return nil
	}, QueueConfig{JobTimeout: 20 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "long", Timeout: time.Hour}))
	select {
	case got := <-budgets:
		assert.Greater(t, got, 59*time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("job not delivered")
	}
}

func TestQueueEnqueueErrors(t *testing.T) {
	q := NewQueue("plans", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "early"}))
	assert.Equal(t, "plans", q.Name())

	block := make(chan struct{})
	full := NewQueue("full", func(context.Context, Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	full.Start(context.Background())
	defer full.Stop()
	defer close(block)

	require.NoError(t, full.Enqueue(Job{ID: "a"}))
	require.Eventually(t, func() bool { return full.Depth() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, full.Enqueue(Job{ID: "b"}))
	assert.Error(t, full.Enqueue(Job{ID: "c"}))
}
