package jobs

import (
	"sync"

	"pkt.systems/mediad/api"
)

// registry is the in-memory view of jobs this process has touched. Poll is
// the single writer for any given job; the registry enforces the lifecycle
// invariants when a flaky remote reports out-of-order states:
//
//   - terminal states are sticky and never overwritten
//   - status never regresses along queued -> in_progress -> terminal
//   - progress is monotone non-decreasing until terminal
type registry struct {
	mu   sync.RWMutex
	jobs map[string]api.Job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]api.Job)}
}

func (r *registry) get(jobID string) (api.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	return job, ok
}

// merge reconciles a remote job document against the cached view and returns
// the authoritative result.
func (r *registry) merge(remote api.Job) api.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	cached, ok := r.jobs[remote.ID]
	if !ok {
		r.jobs[remote.ID] = remote
		return remote
	}
	if cached.Status.Terminal() {
		return cached
	}
	next := remote
	if remote.Status.Rank() < cached.Status.Rank() {
		next.Status = cached.Status
	}
	if cached.Progress > next.Progress && !next.Status.Terminal() {
		next.Progress = cached.Progress
	}
	if next.Status == api.JobCompleted {
		next.Progress = 100
	}
	r.jobs[next.ID] = next
	return next
}

func (r *registry) forget(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}
