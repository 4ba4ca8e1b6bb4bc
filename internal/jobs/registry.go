package jobs

import (
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long an entry survives after its last update.
const DefaultTTL = 10 * time.Minute

var ErrJobExists = errors.New("job id already in use")

type entry struct {
	status    Status
	updatedAt time.Time
}

// Registry maps job ids to their status. Stale entries are evicted lazily
// on every write; there is no background sweeper.
type Registry struct {
	mu   sync.Mutex
	ttl  time.Duration
	jobs map[string]entry
	now  func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		ttl:  ttl,
		jobs: make(map[string]entry),
		now:  time.Now,
	}
}

// Begin registers id as running. It fails if id is still tracked.
func (r *Registry) Begin(id string) error {
	if id == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)
	if _, ok := r.jobs[id]; ok {
		return ErrJobExists
	}
	r.jobs[id] = entry{status: StatusRunning, updatedAt: now}
	return nil
}

// Set upserts the status of id. Writes to a job already in a terminal state
// are ignored and reported as false.
func (r *Registry) Set(id string, status Status) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	applied := true
	if cur, ok := r.jobs[id]; ok && cur.status.IsTerminal() {
		applied = false
	} else {
		r.jobs[id] = entry{status: status, updatedAt: now}
	}
	r.sweepLocked(now)
	return applied
}

func (r *Registry) Status(id string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return StatusUnknown
	}
	return e.status
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *Registry) sweepLocked(now time.Time) {
	for id, e := range r.jobs {
		if now.Sub(e.updatedAt) > r.ttl {
			delete(r.jobs, id)
		}
	}
}
