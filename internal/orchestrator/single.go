package orchestrator

import (
	"context"
	"os"
	"strings"

	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/logx"
	"github.com/wapuda/ytbatch/internal/sanitize"
	"github.com/wapuda/ytbatch/internal/session"
)

type SingleRequest struct {
	URL   string
	Mode  jobs.Mode
	Title string // preferred download name; the saved title is used when empty
}

// Artifact is a retrieved file waiting to be sent. Close removes it
// together with its session directory.
type Artifact struct {
	Name     string // title plus extension, unsanitized
	SafeName string
	Path     string
	Size     int64

	session *session.Dir
}

func (a *Artifact) Open() (*os.File, error) { return os.Open(a.Path) }

func (a *Artifact) Close() error {
	if a == nil || a.session == nil {
		return nil
	}
	return a.session.Remove()
}

// Fetch retrieves one item into a fresh session directory. On error
// nothing is left on disk.
func (o *Orchestrator) Fetch(ctx context.Context, req SingleRequest) (*Artifact, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, jobs.Errorf(jobs.KindInput, "fetch", "url is required")
	}
	if !req.Mode.Valid() {
		return nil, jobs.Errorf(jobs.KindInput, "fetch", "invalid mode %q", req.Mode)
	}

	sess, err := session.Create(o.opts.TempRoot)
	if err != nil {
		return nil, jobs.Wrap(jobs.KindSetup, "create session", err)
	}
	l := logx.FromCtx(ctx)

	out, err := o.retriever.Download(ctx, req.URL, req.Mode, sess.Path())
	if err != nil {
		_ = sess.Remove()
		l.Warn().Err(err).Str("url", req.URL).Msg("single download failed")
		return nil, err
	}
	fi, err := os.Stat(out.Path)
	if err != nil {
		_ = sess.Remove()
		return nil, jobs.Wrap(jobs.KindRetrieval, "stat output", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = out.Title()
	}
	name := title + out.Ext()
	l.Info().Str("file", fi.Name()).Int64("size", fi.Size()).Msg("single download ready")
	return &Artifact{
		Name:     name,
		SafeName: sanitize.Sanitize(title) + out.Ext(),
		Path:     out.Path,
		Size:     fi.Size(),
		session:  sess,
	}, nil
}
