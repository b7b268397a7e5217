// -----------------------------------------------------------------------
// Cancel Registry - Cancellation intent shared by dispatcher and workers
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"sync"
)

// CancelRegistry tracks cancel requests against queued jobs and live
// cancel funcs for processing ones. A request against a queued job is
// honored lazily when a worker dequeues it; a request against a
// processing job cancels that job's context immediately.
type CancelRegistry struct {
	mu        sync.Mutex
	requested map[string]struct{}
	running   map[string]context.CancelFunc
}

// NewCancelRegistry creates an empty registry
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		requested: make(map[string]struct{}),
		running:   make(map[string]context.CancelFunc),
	}
}

// Request marks jobID for cancellation and cancels its job context when
// one is live. Returns true when the job was processing at the time.
func (r *CancelRegistry) Request(jobID string) bool {
	r.mu.Lock()
	cancel, live := r.running[jobID]
	r.requested[jobID] = struct{}{}
	r.mu.Unlock()

	if live {
		cancel()
	}
	return live
}

// Requested reports whether a cancel request is pending for jobID
func (r *CancelRegistry) Requested(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.requested[jobID]
	return ok
}

// Track records the live cancel func for a processing job. A request
// that arrived while the job was still queued fires immediately.
func (r *CancelRegistry) Track(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	_, pending := r.requested[jobID]
	r.running[jobID] = cancel
	r.mu.Unlock()

	if pending {
		cancel()
	}
}

// Clear drops both the request and the live entry for jobID
func (r *CancelRegistry) Clear(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requested, jobID)
	delete(r.running, jobID)
}
