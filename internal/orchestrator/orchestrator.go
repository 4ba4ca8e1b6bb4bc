// Package orchestrator drives the retrieval tool for single items and for
// batches streamed as ZIP archives, and owns the cleanup of every temporary
// file a request creates.
package orchestrator

import (
	"context"
	"time"

	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/proc"
	"github.com/wapuda/ytbatch/internal/ytdlp"
)

// Retriever is the process runner seen by the orchestrator. ytdlp.Runner
// implements it.
type Retriever interface {
	Start(ctx context.Context, sourceURL string, mode jobs.Mode, outDir string) (*ytdlp.Run, error)
	Download(ctx context.Context, sourceURL string, mode jobs.Mode, outDir string) (ytdlp.Output, error)
}

type Options struct {
	TempRoot string        // parent of session dirs; os.TempDir when empty
	Grace    time.Duration // graceful-to-forced termination window
}

type Orchestrator struct {
	retriever Retriever
	jobs      *jobs.Registry
	opts      Options
	now       func() time.Time
}

func New(r Retriever, registry *jobs.Registry, opts Options) *Orchestrator {
	if opts.Grace <= 0 {
		opts.Grace = proc.DefaultGrace
	}
	if registry == nil {
		registry = jobs.NewRegistry(jobs.DefaultTTL)
	}
	return &Orchestrator{
		retriever: r,
		jobs:      registry,
		opts:      opts,
		now:       time.Now,
	}
}

// Jobs exposes the registry the orchestrator reports to.
func (o *Orchestrator) Jobs() *jobs.Registry { return o.jobs }
