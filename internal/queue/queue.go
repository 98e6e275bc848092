// Package queue is the boundary to the downstream job queue. Completed
// actions that hand work to background workers enqueue here; priority 4 and
// above routes to the low-latency queue.
package queue

import (
	"context"
	"sync"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// UrgentPriority is the threshold at or above which jobs take the
// low-latency queue.
const UrgentPriority = 4

// Queue enqueues downstream jobs.
type Queue interface {
	Enqueue(ctx context.Context, job models.Job) error
	Close() error
}

// MemoryQueue buffers jobs in memory, for tests and single-process
// deployments without a broker.
type MemoryQueue struct {
	mu     sync.Mutex
	normal []models.Job
	urgent []models.Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.Priority >= UrgentPriority {
		q.urgent = append(q.urgent, job)
	} else {
		q.normal = append(q.normal, job)
	}
	return nil
}

// Drain returns and clears the buffered jobs, urgent first.
func (q *MemoryQueue) Drain() []models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Job, 0, len(q.urgent)+len(q.normal))
	out = append(out, q.urgent...)
	out = append(out, q.normal...)
	q.urgent = q.urgent[:0]
	q.normal = q.normal[:0]
	return out
}

// Len reports how many jobs are buffered.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.urgent) + len(q.normal)
}

func (q *MemoryQueue) Close() error { return nil }
