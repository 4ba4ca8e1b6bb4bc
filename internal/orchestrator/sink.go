package orchestrator

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var errSinkAborted = errors.New("archive stream aborted")

type flusher interface{ Flush() }

// sink sits between the zip writer and the response. Once aborted, or after
// the first failed write, every write fails. abort never blocks, even while
// a write to a slow client is in flight.
type sink struct {
	w       io.Writer
	flusher flusher

	aborted atomic.Bool

	mu  sync.Mutex
	err error
}

func newSink(w io.Writer) *sink {
	s := &sink{w: w}
	if f, ok := w.(flusher); ok {
		s.flusher = f
	}
	return s
}

func (s *sink) Write(p []byte) (int, error) {
	if s.aborted.Load() {
		return 0, errSinkAborted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.w.Write(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

func (s *sink) Flush() {
	if s.flusher == nil || s.aborted.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.flusher.Flush()
	}
}

func (s *sink) abort() { s.aborted.Store(true) }

// failed reports whether the downstream can no longer take bytes.
func (s *sink) failed() bool {
	if s.aborted.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}
