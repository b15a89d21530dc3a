package upload

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgharvester/internal/message"
)

func TestCoordinator_ProcessesEnqueuedJobs(t *testing.T) {
	var processed int64
	var mu sync.Mutex
	var ids []int

	c := NewCoordinator(Options{Capacity: 10, Workers: 2}, func(ctx context.Context, job Job) error {
		atomic.AddInt64(&processed, 1)
		mu.Lock()
		ids = append(ids, job.Message.ID)
		mu.Unlock()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	for i := 1; i <= 5; i++ {
		assert.True(t, c.Enqueue(Job{Message: message.Message{ID: i}}))
	}

	c.Shutdown(context.Background())
	assert.Equal(t, int64(5), atomic.LoadInt64(&processed))
	assert.Len(t, ids, 5)
}

func TestCoordinator_EnqueueDropsWhenShuttingDown(t *testing.T) {
	c := NewCoordinator(DefaultOptions(), func(ctx context.Context, job Job) error { return nil })
	ctx := context.Background()
	c.Start(ctx)
	c.Shutdown(ctx)

	ok := c.Enqueue(Job{Message: message.Message{ID: 1}})
	assert.False(t, ok)
}

func TestCoordinator_EnqueueTimeoutDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	c := NewCoordinator(Options{Capacity: 1, Workers: 1}, func(ctx context.Context, job Job) error {
		<-block
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.True(t, c.Enqueue(Job{Message: message.Message{ID: 1}})) // consumed by the blocked worker
	require.True(t, c.Enqueue(Job{Message: message.Message{ID: 2}})) // fills the capacity-1 buffer

	start := time.Now()
	ok := c.Enqueue(Job{Message: message.Message{ID: 3}})
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), enqueueTimeout)

	close(block)
}

func TestCoordinator_DefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 1000, opts.Capacity)
	assert.Equal(t, 1, opts.Workers)
}
