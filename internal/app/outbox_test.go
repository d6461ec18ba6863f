package app

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

func TestOutbox_RetriesUntilSuccess(t *testing.T) {
	outbox := NewOutbox(testLogger(), 1, 3, time.Millisecond)
	outbox.Start()

	var attempts int32
	outbox.Enqueue("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return errors.New("temporary failure")
		}
		return nil
	})
	outbox.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Empty(t, outbox.DeadLetters())
}

func TestOutbox_DeadLettersAfterExhaustedRetries(t *testing.T) {
	outbox := NewOutbox(testLogger(), 1, 3, time.Millisecond)
	outbox.Start()

	var attempts int32
	outbox.Enqueue("doomed", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("permanent failure")
	})
	outbox.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	dead := outbox.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "doomed", dead[0].Name)
	assert.Equal(t, 3, dead[0].Attempts)
	assert.Equal(t, "permanent failure", dead[0].LastErr)
	assert.NotEmpty(t, dead[0].ID)
}

func TestOutbox_DropsTasksAfterStop(t *testing.T) {
	outbox := NewOutbox(testLogger(), 2, 1, 0)
	outbox.Start()
	outbox.Stop()

	var ran int32
	outbox.Enqueue("late", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestOutbox_StopWithConcurrentEnqueues(t *testing.T) {
	outbox := NewOutbox(testLogger(), 2, 1, 0)
	outbox.Start()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				outbox.Enqueue("rush", func(ctx context.Context) error { return nil })
			}
		}()
	}
	close(start)
	outbox.Stop()
	wg.Wait()

	assert.Empty(t, outbox.DeadLetters())
}

func TestOutbox_RunsTasksConcurrently(t *testing.T) {
	outbox := NewOutbox(testLogger(), 4, 1, 0)
	outbox.Start()

	var ran int32
	for i := 0; i < 20; i++ {
		outbox.Enqueue("bulk", func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}
	outbox.Stop()

	assert.Equal(t, int32(20), atomic.LoadInt32(&ran))
}
