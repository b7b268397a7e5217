// -----------------------------------------------------------------------
// Job Queue - Bounded in-process queue with optional prioritization
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/ternarybob/faber/internal/models"
)

// MemoryQueue is a bounded queue holding dispatched jobs until a worker
// picks them up. The size bound covers all priorities together. In
// unprioritized mode jobs leave in strict arrival order; in prioritized
// mode the lowest priority number drains first, arrival order within a
// priority.
//
// A buffered token channel mirrors the number of queued jobs so Dequeue
// can block on job-or-context without polling. Each queued job holds
// exactly one token, so a token send after a successful admit never
// blocks.
type MemoryQueue struct {
	mu          sync.Mutex
	buckets     map[int][]*models.Job
	priorities  []int // sorted keys of buckets with entries
	total       int
	maxSize     int
	prioritized bool
	closed      bool
	tokens      chan struct{}
}

// NewMemoryQueue creates a queue bounded to maxSize jobs
func NewMemoryQueue(maxSize int, prioritized bool) *MemoryQueue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &MemoryQueue{
		buckets:     make(map[int][]*models.Job),
		maxSize:     maxSize,
		prioritized: prioritized,
		tokens:      make(chan struct{}, maxSize),
	}
}

// Enqueue attempts to admit a job without blocking. Returns false when
// the queue is at capacity or closed.
func (q *MemoryQueue) Enqueue(job *models.Job) bool {
	if job == nil {
		return false
	}

	q.mu.Lock()
	if q.closed || q.total >= q.maxSize {
		q.mu.Unlock()
		return false
	}

	priority := 0
	if q.prioritized {
		priority = job.Priority
	}

	if len(q.buckets[priority]) == 0 {
		q.insertPriority(priority)
	}
	q.buckets[priority] = append(q.buckets[priority], job)
	q.total++
	q.mu.Unlock()

	q.tokens <- struct{}{}
	return true
}

// Dequeue blocks until a job is available or the context ends
func (q *MemoryQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	select {
	case <-q.tokens:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// A token guarantees an entry; the lowest priority present wins
	for _, priority := range q.priorities {
		bucket := q.buckets[priority]
		if len(bucket) == 0 {
			continue
		}
		job := bucket[0]
		q.buckets[priority] = bucket[1:]
		if len(q.buckets[priority]) == 0 {
			delete(q.buckets, priority)
			q.removePriority(priority)
		}
		q.total--
		return job, nil
	}

	// Unreachable while the token invariant holds
	return nil, context.Canceled
}

// Count returns the approximate number of queued jobs
func (q *MemoryQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}

// Close stops the queue from accepting further enqueues. Queued jobs
// remain dequeueable.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// insertPriority adds a priority to the sorted slice. Caller holds mu.
func (q *MemoryQueue) insertPriority(priority int) {
	idx := sort.SearchInts(q.priorities, priority)
	if idx < len(q.priorities) && q.priorities[idx] == priority {
		return
	}
	q.priorities = append(q.priorities, 0)
	copy(q.priorities[idx+1:], q.priorities[idx:])
	q.priorities[idx] = priority
}

// removePriority drops a priority from the sorted slice. Caller holds mu.
func (q *MemoryQueue) removePriority(priority int) {
	idx := sort.SearchInts(q.priorities, priority)
	if idx < len(q.priorities) && q.priorities[idx] == priority {
		q.priorities = append(q.priorities[:idx], q.priorities[idx+1:]...)
	}
}
