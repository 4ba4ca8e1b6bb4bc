package ytdlp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	goytdlp "github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"github.com/wapuda/ytbatch/internal/ids"
	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/logx"
	"github.com/wapuda/ytbatch/internal/proc"
)

const (
	DefaultBinary = "yt-dlp"

	// Post-processing target for both modes.
	AudioFormat    = "m4a"
	VideoContainer = "mp4"
	VideoFormat    = "bestvideo[ext=mp4]+bestaudio[acodec^=mp4a]/bestvideo[ext=mp4]+bestaudio/best"
	VideoPPArgs    = "ffmpeg:-c:v copy -c:a aac -b:a 192k"

	// keep the tail of the tool's output for error reports
	maxCapturedOutput = 8192
	// bound on waiting for output pipes after the tool itself exited
	pipeWaitDelay = 5 * time.Second
)

// ExitError is a failed invocation. Code is -1 when the tool never started
// or was killed by a signal.
type ExitError struct {
	Code   int
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" && e.Err != nil {
		out = e.Err.Error()
	}
	return fmt.Sprintf("yt-dlp failed (%d): %s", e.Code, out)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner invokes the retrieval tool. The zero value is usable.
type Runner struct {
	Binary string        // defaults to DefaultBinary
	Grace  time.Duration // graceful-to-forced window used by Download
}

// Run is one live invocation.
type Run struct {
	Process  *proc.Process
	Template string
	Token    string

	output  *tailBuffer
	logPipe *io.PipeWriter

	waitOnce sync.Once
	err      error
}

func (r Runner) binary() string {
	if strings.TrimSpace(r.Binary) == "" {
		return DefaultBinary
	}
	return r.Binary
}

// command builds one invocation with the mode's profile. The source URL is
// the last argument. The process is not bound to a context: its lifetime
// belongs to proc, which owns the group signalling.
func (r Runner) command(mode jobs.Mode, template, sourceURL string) *exec.Cmd {
	dl := goytdlp.New().
		SetExecutable(r.binary()).
		NoPlaylist().
		Newline().
		Output(template)
	if mode == jobs.ModeAudio {
		dl.ExtractAudio().AudioFormat(AudioFormat)
	} else {
		dl.Format(VideoFormat).
			MergeOutputFormat(VideoContainer).
			RemuxVideo(VideoContainer).
			AudioFormat(AudioFormat).
			PostProcessorArgs(VideoPPArgs)
	}
	return dl.BuildCommand(context.Background(), sourceURL)
}

// Args is the argument list passed to the tool, without the executable.
func Args(mode jobs.Mode, template, sourceURL string) []string {
	return Runner{}.command(mode, template, sourceURL).Args[1:]
}

// Start spawns the tool and returns as soon as the process exists, so the
// caller can register it for cancellation before any output arrives. ctx
// only scopes log fields; the process is not bound to it.
func (r Runner) Start(ctx context.Context, sourceURL string, mode jobs.Mode, outDir string) (*Run, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return nil, jobs.Errorf(jobs.KindInput, "start yt-dlp", "source URL is required")
	}
	if !mode.Valid() {
		return nil, jobs.Errorf(jobs.KindInput, "start yt-dlp", "invalid mode %q", mode)
	}
	if fi, err := os.Stat(outDir); err != nil || !fi.IsDir() {
		return nil, jobs.Errorf(jobs.KindInput, "start yt-dlp", "output directory %q does not exist", outDir)
	}

	token := ids.ShortToken()
	template := TemplateFor(outDir, token)

	// Stdin stays nil, so the tool reads from the null device.
	cmd := r.command(mode, template, sourceURL)
	cmd.Env = append(cmd.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=UTF-8")
	cmd.WaitDelay = pipeWaitDelay

	out := &tailBuffer{limit: maxCapturedOutput}
	pr, pw := io.Pipe()
	// same writer for both streams: exec copies them on a single goroutine
	combined := io.MultiWriter(out, pw)
	cmd.Stdout = combined
	cmd.Stderr = combined

	lw := logx.NewLineWriter(logx.FromCtx(ctx), map[string]string{"proc": "yt-dlp", "token": token}, zerolog.DebugLevel)
	go lw.Pipe(pr)

	p, err := proc.Start(cmd)
	if err != nil {
		_ = pw.Close()
		return nil, jobs.Wrap(jobs.KindRetrieval, "spawn yt-dlp", &ExitError{Code: -1, Err: err})
	}

	l := logx.FromCtx(ctx)
	l.Debug().Int("pid", p.Pid()).Str("mode", string(mode)).Str("url", sourceURL).Msg("yt-dlp started")

	return &Run{
		Process:  p,
		Template: template,
		Token:    token,
		output:   out,
		logPipe:  pw,
	}, nil
}

// Wait blocks until the tool exits and returns the output template on exit
// code 0. Safe to call more than once.
func (r *Run) Wait() (string, error) {
	r.waitOnce.Do(func() {
		err := r.Process.Wait()
		_ = r.logPipe.Close()
		if err != nil {
			r.err = jobs.Wrap(jobs.KindRetrieval, "run yt-dlp", &ExitError{
				Code:   r.Process.ExitCode(),
				Output: r.output.String(),
				Err:    err,
			})
		}
	})
	if r.err != nil {
		return "", r.err
	}
	return r.Template, nil
}

// Output returns the captured tail of stdout and stderr.
func (r *Run) Output() string { return r.output.String() }

// Download runs the tool to completion and locates the produced file. If
// ctx ends first the process is terminated and ctx's error returned.
func (r Runner) Download(ctx context.Context, sourceURL string, mode jobs.Mode, outDir string) (Output, error) {
	run, err := r.Start(ctx, sourceURL, mode, outDir)
	if err != nil {
		return Output{}, err
	}

	select {
	case <-run.Process.Done():
	case <-ctx.Done():
		run.Process.Terminate(r.Grace)
		_, _ = run.Wait()
		return Output{}, fmt.Errorf("download %s: %w", sourceURL, ctx.Err())
	}

	template, err := run.Wait()
	if err != nil {
		return Output{}, err
	}
	path, err := FindOutput(outDir, template)
	if err != nil {
		return Output{}, jobs.Wrap(jobs.KindRetrieval, "locate output", err)
	}
	return Output{Path: path, Template: template}, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
