package asic

import "sync"

// registrySize covers the full local_job_id address space named in spec §3
// even though only the 16 multiples of 8 in [0,128) are ever assigned.
const registrySize = 128

// Registry is the ActiveJobRegistry of spec §3: two parallel arrays indexed
// by local_job_id, guarded by a single mutex. Invariant: for every result
// returned by the ASIC, either valid[id]==1 and active[id]!=nil, or the
// result is discarded.
type Registry struct {
	mu     sync.Mutex
	active [registrySize]*Job
	valid  [registrySize]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Install installs job under job.LocalJobID, releasing whatever occupied
// that slot before (spec §4.5 "registry slot reuse": the registry keeps
// only the newest entry per slot).
func (r *Registry) Install(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[job.LocalJobID] = job
	r.valid[job.LocalJobID] = true
}

// Invalidate marks a slot invalid without removing the stored job, so a
// racing in-flight result can still be rejected by the valid[] check.
func (r *Registry) Invalidate(localJobID uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid[localJobID] = false
}

// Lookup returns the job installed at localJobID and whether the slot is
// currently valid. The returned *Job must be treated as read-only by the
// caller — it is still owned by the registry.
func (r *Registry) Lookup(localJobID uint8) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.valid[localJobID] {
		return nil, false
	}
	return r.active[localJobID], true
}

// InvalidateEpochBefore marks every slot whose installed job carries an
// epoch older than currentEpoch invalid — the clean_jobs memory-order
// barrier of spec §5: after it, no prior-epoch job is submitted upstream.
func (r *Registry) InvalidateEpochBefore(currentEpoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.active {
		if r.active[i] != nil && r.active[i].Epoch < currentEpoch {
			r.valid[i] = false
		}
	}
}
