package orchestrator

import (
	"sync"

	"github.com/wapuda/ytbatch/internal/proc"
)

// activeSet holds the processes of one batch that have been spawned and not
// yet reaped. It is the only target of the cancellation fan-out.
type activeSet struct {
	mu    sync.Mutex
	procs map[*proc.Process]struct{}
}

func (s *activeSet) add(p *proc.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.procs == nil {
		s.procs = make(map[*proc.Process]struct{})
	}
	s.procs[p] = struct{}{}
}

func (s *activeSet) remove(p *proc.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, p)
}

func (s *activeSet) snapshot() []*proc.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*proc.Process, 0, len(s.procs))
	for p := range s.procs {
		out = append(out, p)
	}
	return out
}

func (s *activeSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}
