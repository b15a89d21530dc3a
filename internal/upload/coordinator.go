// Package upload implements the bounded-queue Upload Coordinator from
// spec §4.6, decoupling per-session Downloaders (producers) from the
// Staged Publisher (consumer) so downloading and publishing run
// concurrently. Grounded on the teacher's sync.Map-based mediaGroups
// buffering in bot/mediagroup.go, generalized from an in-memory map to a
// bounded channel queue with explicit drain/shutdown semantics.
package upload

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tgharvester/internal/download"
	"tgharvester/internal/message"
)

const (
	defaultCapacity   = 1000
	enqueueTimeout    = time.Second
	dequeuePoll       = 500 * time.Millisecond
	drainTimeout      = 30 * time.Second
	forceCancelExtra  = 10 * time.Second
)

// Job is the (message, downloaded-bytes, session-name) tuple from spec
// §4.6.
type Job struct {
	Message     message.Message
	Item        download.Item
	SessionName string
}

// PublishFunc invokes the publish service with the referenced session.
type PublishFunc func(ctx context.Context, job Job) error

// Coordinator is the bounded FIFO queue with M consumer workers.
type Coordinator struct {
	queue   chan *Job
	publish PublishFunc
	workers int

	pending  int64
	shutdown int32

	wg sync.WaitGroup
}

// Options configures capacity and worker count, defaulting to spec
// §4.6's capacity=1000, workers=1.
type Options struct {
	Capacity int
	Workers  int
}

func DefaultOptions() Options { return Options{Capacity: defaultCapacity, Workers: 1} }

func NewCoordinator(opts Options, publish PublishFunc) *Coordinator {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Coordinator{queue: make(chan *Job, opts.Capacity), publish: publish, workers: opts.Workers}
}

// Start launches the consumer workers. Call Shutdown to stop them.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.consumeLoop(ctx, i)
	}
}

// Enqueue attempts to push job onto the queue within enqueueTimeout;
// on timeout it logs and drops, per spec §4.6 ("never blocks the
// download pipeline").
func (c *Coordinator) Enqueue(job Job) bool {
	if atomic.LoadInt32(&c.shutdown) == 1 {
		log.Printf("[UploadCoordinator] dropping message %d: shutting down", job.Message.ID)
		return false
	}
	atomic.AddInt64(&c.pending, 1)
	t := time.NewTimer(enqueueTimeout)
	defer t.Stop()
	select {
	case c.queue <- &job:
		return true
	case <-t.C:
		atomic.AddInt64(&c.pending, -1)
		log.Printf("[UploadCoordinator] enqueue timeout for message %d (session %s), dropping", job.Message.ID, job.SessionName)
		return false
	}
}

func (c *Coordinator) consumeLoop(ctx context.Context, idx int) {
	defer c.wg.Done()
	ticker := time.NewTicker(dequeuePoll)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-c.queue:
			if !ok {
				return
			}
			if job == nil {
				// sentinel pushed at shutdown
				return
			}
			c.process(ctx, job)
		case <-ticker.C:
			// spec §4.6's 0.5s dequeue poll cadence; nothing to do beyond
			// letting the loop re-check for cancellation below.
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) process(ctx context.Context, job *Job) {
	defer atomic.AddInt64(&c.pending, -1)
	if err := c.publish(ctx, *job); err != nil {
		log.Printf("[UploadCoordinator worker] publish failed for message %d: %v", job.Message.ID, err)
	}
}

// Shutdown flips the shutdown flag, awaits drain for up to drainTimeout,
// wakes consumers with M sentinels, then waits up to an additional
// forceCancelExtra for them to exit. A consumer still running after that
// is not cancelled; Shutdown logs and returns without it.
func (c *Coordinator) Shutdown(ctx context.Context) {
	atomic.StoreInt32(&c.shutdown, 1)

	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&c.pending) == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	for i := 0; i < c.workers; i++ {
		select {
		case c.queue <- nil:
		default:
		}
	}

	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(forceCancelExtra):
		log.Printf("[UploadCoordinator] force-cancelling after %s", forceCancelExtra)
	}
}
