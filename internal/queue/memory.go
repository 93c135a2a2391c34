package queue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryQueue is an in-process JobQueue backed by a bounded channel. It
// keeps the single-binary development setup and the tests free of a
// broker while preserving the asynchronous handoff.
type MemoryQueue struct {
	jobs chan Job

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewMemoryQueue creates an in-memory queue holding at most size pending
// jobs. Publish blocks when the buffer is full.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

// Publish enqueues a job, blocking while the buffer is full.
func (q *MemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// StartConsumer processes jobs one at a time on a background goroutine.
func (q *MemoryQueue) StartConsumer(handler Handler) error {
	go func() {
		for {
			select {
			case <-q.done:
				// Drain what was already queued before Close.
				for {
					select {
					case job := <-q.jobs:
						q.run(handler, job)
					default:
						return
					}
				}
			case job := <-q.jobs:
				q.run(handler, job)
			}
		}
	}()
	return nil
}

func (q *MemoryQueue) run(handler Handler, job Job) {
	if err := handler(context.Background(), job); err != nil {
		logrus.Errorf("Job %s %s failed: %v", job.Kind, job.CampaignID, err)
	}
}

// Close stops the consumer after pending jobs drain.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}
