package orchestrator

import (
	"archive/zip"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/wapuda/ytbatch/internal/ids"
	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/logx"
	"github.com/wapuda/ytbatch/internal/sanitize"
	"github.com/wapuda/ytbatch/internal/session"
	"github.com/wapuda/ytbatch/internal/ytdlp"
)

// ArchiveName is the download name of every batch archive.
const ArchiveName = "downloads.zip"

var ErrCancelled = errors.New("batch cancelled")

type BatchRequest struct {
	JobID string // generated when empty
	Mode  jobs.Mode
	Items []jobs.Item
}

func (r BatchRequest) validate() error {
	if len(r.Items) == 0 {
		return jobs.Errorf(jobs.KindInput, "batch", "items must not be empty")
	}
	if !r.Mode.Valid() {
		return jobs.Errorf(jobs.KindInput, "batch", "invalid mode %q", r.Mode)
	}
	for i, it := range r.Items {
		if !it.Valid() {
			return jobs.Errorf(jobs.KindInput, "batch", "item %d has neither id nor url", i)
		}
	}
	return nil
}

// Report summarises a streamed batch.
type Report struct {
	JobID    string
	Archived int
	Failed   int
	Status   jobs.Status
}

// Batch is one accepted batch request. It moves from running to exactly one
// of done, error or cancelled; the transition and its cleanup happen once.
type Batch struct {
	o       *Orchestrator
	id      string
	mode    jobs.Mode
	items   []jobs.Item
	session *session.Dir
	log     zerolog.Logger

	active  activeSet
	names   nameTable
	sink    *sink
	stopped atomic.Bool

	settle  sync.Once
	outcome jobs.Status

	streamed atomic.Bool
	archived int
	failed   int
}

// Begin validates req, registers the job as running and creates the
// session directory. Nothing is allocated when validation fails.
func (o *Orchestrator) Begin(ctx context.Context, req BatchRequest) (*Batch, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(req.JobID)
	if id == "" {
		id = ids.NewULID()
	}
	if err := o.jobs.Begin(id); err != nil {
		return nil, jobs.Wrap(jobs.KindInput, "register job "+id, err)
	}

	l := logx.FromCtx(logx.WithJob(ctx, id))
	sess, err := session.Create(o.opts.TempRoot)
	if err != nil {
		o.jobs.Set(id, jobs.StatusError)
		l.Error().Err(err).Msg("batch setup failed")
		return nil, jobs.Wrap(jobs.KindSetup, "create session", err)
	}

	l.Info().Int("items", len(req.Items)).Str("mode", string(req.Mode)).Str("session", sess.Path()).Msg("batch accepted")
	return &Batch{
		o:       o,
		id:      id,
		mode:    req.Mode,
		items:   req.Items,
		session: sess,
		log:     l,
		names:   make(nameTable),
	}, nil
}

func (b *Batch) ID() string { return b.id }

// SessionDir is the batch's temporary directory, gone once the batch settles.
func (b *Batch) SessionDir() string { return b.session.Path() }

// Stream writes the archive to w, retrieving items one after another. It
// returns when the archive is complete or the batch was cancelled. Ending
// ctx (client disconnect) or a failed write to w cancels the batch: running
// processes are terminated, the archive is abandoned, the session removed
// and the job marked cancelled. If w implements Flush it is flushed after
// every entry.
func (b *Batch) Stream(ctx context.Context, w io.Writer) (Report, error) {
	if !b.streamed.CompareAndSwap(false, true) {
		return Report{}, errors.New("batch already streamed")
	}
	ctx = logx.WithJob(ctx, b.id)

	b.sink = newSink(w)
	zw := zip.NewWriter(b.sink)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	stop := context.AfterFunc(ctx, func() { b.cancel("client disconnected") })
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			b.fail(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	for _, it := range b.items {
		if b.stopped.Load() {
			break
		}
		b.processItem(ctx, zw, it)
	}

	if !b.stopped.Load() {
		if err := zw.Close(); err != nil {
			b.cancel("finalize archive: " + err.Error())
		} else {
			b.sink.Flush()
		}
	}
	b.finish()

	rep := b.report()
	if rep.Status == jobs.StatusCancelled {
		return rep, ErrCancelled
	}
	return rep, nil
}

func (b *Batch) report() Report {
	return Report{JobID: b.id, Archived: b.archived, Failed: b.failed, Status: b.outcome}
}

func (b *Batch) processItem(ctx context.Context, zw *zip.Writer, it jobs.Item) {
	ctx = logx.WithItem(ctx, it.Key())
	l := logx.FromCtx(ctx)

	out, err := b.retrieve(ctx, it)
	if b.stopped.Load() {
		return
	}
	if err != nil {
		l.Warn().Err(err).Msg("item failed")
		b.appendDiagnostic(zw, it, err)
		return
	}

	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = out.Title()
	}
	name := b.names.claim(sanitize.Sanitize(title) + out.Ext())

	if err := b.appendFile(zw, name, out.Path); err != nil {
		if b.sink.failed() {
			b.cancel("write archive: " + err.Error())
			return
		}
		l.Warn().Err(err).Str("entry", name).Msg("archiving item failed")
		b.appendDiagnostic(zw, it, err)
		return
	}
	b.archived++
	l.Info().Str("entry", name).Msg("item archived")
}

// retrieve runs the tool for one item. The process joins the active set
// as soon as it exists; if cancellation already happened it is stopped
// right away, so no spawned process escapes the fan-out.
func (b *Batch) retrieve(ctx context.Context, it jobs.Item) (ytdlp.Output, error) {
	run, err := b.o.retriever.Start(ctx, it.FetchURL(), b.mode, b.session.Path())
	if err != nil {
		return ytdlp.Output{}, err
	}
	b.active.add(run.Process)
	if b.stopped.Load() {
		run.Process.Terminate(b.o.opts.Grace)
	}
	template, err := run.Wait()
	b.active.remove(run.Process)
	if err != nil {
		return ytdlp.Output{}, err
	}

	path, err := ytdlp.FindOutput(b.session.Path(), template)
	if err != nil {
		return ytdlp.Output{}, jobs.Wrap(jobs.KindRetrieval, "locate output", err)
	}
	return ytdlp.Output{Path: path, Template: template}, nil
}

// appendFile streams path into a new entry and deletes it afterwards.
func (b *Batch) appendFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(path)
	}()

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: b.o.now()}
	if fi, err := f.Stat(); err == nil {
		hdr.Modified = fi.ModTime()
	}
	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := io.Copy(ew, f); err != nil {
		return fmt.Errorf("copy %s into archive: %w", name, err)
	}
	return b.flush(zw)
}

// flush pushes everything the zip writer buffered out to the client.
func (b *Batch) flush(zw *zip.Writer) error {
	if err := zw.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	b.sink.Flush()
	return nil
}

func (b *Batch) appendDiagnostic(zw *zip.Writer, it jobs.Item, cause error) {
	b.failed++
	now := b.o.now()
	name := b.names.claim(fmt.Sprintf("error-%d.txt", now.UnixMilli()))
	msg := fmt.Sprintf("Failed to download item %s: %v\n", it.Key(), cause)

	ew, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: now})
	if err == nil {
		_, err = io.WriteString(ew, msg)
	}
	if err == nil {
		err = b.flush(zw)
	}
	if err != nil {
		if b.sink.failed() {
			b.cancel("write archive: " + err.Error())
			return
		}
		b.log.Error().Err(err).Str("entry", name).Msg("writing diagnostic entry failed")
	}
}

// cancel is the close-before-finish path.
func (b *Batch) cancel(reason string) {
	b.settle.Do(func() {
		b.stopped.Store(true)
		procs := b.active.snapshot()
		for _, p := range procs {
			p.Terminate(b.o.opts.Grace)
		}
		if b.sink != nil {
			b.sink.abort()
		}
		if err := b.session.Remove(); err != nil {
			b.log.Warn().Err(err).Msg("session cleanup failed")
		}
		b.o.jobs.Set(b.id, jobs.StatusCancelled)
		b.outcome = jobs.StatusCancelled
		b.log.Info().Str("reason", reason).Int("terminated", len(procs)).Msg("batch cancelled")
	})
}

// finish is the normal-completion path; a no-op once cancelled.
func (b *Batch) finish() {
	b.settle.Do(func() {
		if err := b.session.Remove(); err != nil {
			b.log.Warn().Err(err).Msg("session cleanup failed")
		}
		b.o.jobs.Set(b.id, jobs.StatusDone)
		b.outcome = jobs.StatusDone
		b.log.Info().Int("archived", b.archived).Int("failed", b.failed).Msg("batch done")
	})
}

func (b *Batch) fail(err error) {
	b.settle.Do(func() {
		b.stopped.Store(true)
		for _, p := range b.active.snapshot() {
			p.Terminate(b.o.opts.Grace)
		}
		if b.sink != nil {
			b.sink.abort()
		}
		_ = b.session.Remove()
		b.o.jobs.Set(b.id, jobs.StatusError)
		b.outcome = jobs.StatusError
		b.log.Error().Err(err).Msg("batch failed")
	})
}
