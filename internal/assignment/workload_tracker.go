package assignment

import "sync"

// WorkloadTracker counts open assignments per user. It is the only mutable state shared
// between assignment runs; every read used for ranking happens under the same lock as
// the reservation it leads to.
type WorkloadTracker struct {
	mu    sync.Mutex
	loads map[string]int
}

// NewWorkloadTracker creates an empty tracker
func NewWorkloadTracker() *WorkloadTracker {
	return &WorkloadTracker{loads: make(map[string]int)}
}

// CurrentLoad returns the open assignment count of userID
func (t *WorkloadTracker) CurrentLoad(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loads[userID]
}

// Reserve increments the load of userID and returns the new value
func (t *WorkloadTracker) Reserve(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loads[userID]++
	return t.loads[userID]
}

// Release decrements the load of userID, never below zero
func (t *WorkloadTracker) Release(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loads[userID] > 0 {
		t.loads[userID]--
	}
}

// Seed replaces all loads, typically with open assignments read from the store
func (t *WorkloadTracker) Seed(loads map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loads = make(map[string]int, len(loads))
	for id, n := range loads {
		t.loads[id] = n
	}
}

// Snapshot returns a copy of the current loads
func (t *WorkloadTracker) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.loads))
	for id, n := range t.loads {
		out[id] = n
	}
	return out
}

// ReserveLeastLoaded picks the candidate with the lowest load, skipping exclude, and
// reserves it in the same critical section. Ties go to the earliest candidate.
func (t *WorkloadTracker) ReserveLeastLoaded(candidates []string, exclude string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	best, bestLoad := "", 0
	for _, id := range candidates {
		if id == exclude {
			continue
		}
		if load := t.loads[id]; best == "" || load < bestLoad {
			best, bestLoad = id, load
		}
	}
	if best == "" {
		return "", false
	}
	t.loads[best]++
	return best, true
}
