// -----------------------------------------------------------------------
// Deduplication Registry - In-flight idempotency key tracking
// -----------------------------------------------------------------------

package queue

import (
	"fmt"
	"sync"

	"github.com/ternarybob/faber/internal/interfaces"
)

// DedupRegistry maps idempotency keys to in-flight job IDs. Both
// directions are indexed so Unregister can run by job ID alone. At most
// one job is in flight per key; registering an existing key replaces
// the prior entry.
type DedupRegistry struct {
	mu       sync.RWMutex
	keyToJob map[string]string
	jobToKey map[string]string
}

// NewDedupRegistry creates an empty registry
func NewDedupRegistry() *DedupRegistry {
	return &DedupRegistry{
		keyToJob: make(map[string]string),
		jobToKey: make(map[string]string),
	}
}

// Register maps key to jobID. An empty key is rejected; an existing key
// is remapped to the new job (last writer wins) and the displaced job's
// reverse entry is dropped.
func (r *DedupRegistry) Register(jobID, key string) error {
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prevJob, ok := r.keyToJob[key]; ok && prevJob != jobID {
		delete(r.jobToKey, prevJob)
	}
	if prevKey, ok := r.jobToKey[jobID]; ok && prevKey != key {
		delete(r.keyToJob, prevKey)
	}

	r.keyToJob[key] = jobID
	r.jobToKey[jobID] = key
	return nil
}

// LookupInFlight returns the job ID registered for a key, or "" when
// the key is empty or not registered
func (r *DedupRegistry) LookupInFlight(key string) string {
	if key == "" {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keyToJob[key]
}

// Unregister removes the entry owned by jobID. Unknown job IDs are a
// no-op; keys registered by a later job are left untouched.
func (r *DedupRegistry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.jobToKey[jobID]
	if !ok {
		return
	}
	delete(r.jobToKey, jobID)
	if r.keyToJob[key] == jobID {
		delete(r.keyToJob, key)
	}
}

// Len returns the number of registered keys
func (r *DedupRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keyToJob)
}

// Verify interface compliance
var _ interfaces.DeduplicationRegistry = (*DedupRegistry)(nil)
