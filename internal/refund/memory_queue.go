package refund

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue keeps jobs in process memory. Jobs do not survive a restart.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]Job)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.NextAt.IsZero() {
		job.NextAt = job.EnqueuedAt
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
	return nil
}

func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Job
	for _, j := range q.jobs {
		if !j.NextAt.After(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].NextAt.Before(out[b].NextAt) })

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, job Job, nextAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.NextAt = nextAt
	q.jobs[job.ID] = job
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}
