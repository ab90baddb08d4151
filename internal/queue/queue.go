// Package queue buffers share samples between the telemetry collector and the
// epoch handler.
//
// The collector is the only producer and the epoch handler the only consumer.
// Samples sit in the queue until the next epoch drains them.
package queue

import (
	"context"
	"sync"

	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/share"
)

const defaultQueueCapacity = 100000

// InMemoryQueue is a bounded sample queue backed by a buffered channel.
type InMemoryQueue struct {
	samples  chan share.Sample
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a queue with the given options applied.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.samples = make(chan share.Sample, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueDepth(0)
	return q
}

// Enqueue adds a sample. It returns false if the queue is closed, full or ctx
// is done.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s share.Sample) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDropped(1)
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueDropped(1)
		return false
	default:
	}

	select {
	case q.samples <- s:
		metrics.UpdateQueueDepth(len(q.samples))
		return true
	default:
		metrics.RecordQueueDropped(1)
		return false
	}
}

// EnqueueBatch adds samples in order and returns how many were accepted.
// It stops at the first rejected sample.
func (q *InMemoryQueue) EnqueueBatch(ctx context.Context, samples []share.Sample) int {
	for i, s := range samples {
		if !q.Enqueue(ctx, s) {
			metrics.RecordQueueDropped(len(samples) - i - 1)
			return i
		}
	}
	return len(samples)
}

// Drain removes and returns every sample currently queued without blocking.
func (q *InMemoryQueue) Drain() []share.Sample {
	n := len(q.samples)
	out := make([]share.Sample, 0, n)
	for {
		select {
		case s, ok := <-q.samples:
			if !ok {
				metrics.UpdateQueueDepth(0)
				return out
			}
			out = append(out, s)
		default:
			metrics.UpdateQueueDepth(len(q.samples))
			return out
		}
	}
}

// Len returns the number of queued samples.
func (q *InMemoryQueue) Len() int {
	size := len(q.samples)
	metrics.UpdateQueueDepth(size)
	return size
}

// Capacity returns the maximum number of queued samples.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting samples. Queued samples can still be drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.samples)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
