package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/proc"
	"github.com/wapuda/ytbatch/internal/ytdlp"
	"github.com/wapuda/ytbatch/internal/ytdlp/ytdlptest"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	r := ytdlp.Runner{Binary: ytdlptest.Binary(t), Grace: 200 * time.Millisecond}
	return New(r, jobs.NewRegistry(time.Minute), Options{TempRoot: root, Grace: 200 * time.Millisecond}), root
}

func item(v string) jobs.Item {
	return jobs.Item{URL: "https://example.com/watch?v=" + v}
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	out := make(map[string]string)
	var order []string
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		out[f.Name] = string(b)
		order = append(order, f.Name)
	}
	t.Logf("entries: %v", order)
	return out
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Fatalf("%s not empty: %d entries left", dir, len(entries))
	}
}

func TestBeginValidation(t *testing.T) {
	o, root := newTestOrchestrator(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  BatchRequest
	}{
		{"no items", BatchRequest{Mode: jobs.ModeAudio}},
		{"bad mode", BatchRequest{Mode: "flac", Items: []jobs.Item{item("a")}}},
		{"empty item", BatchRequest{Mode: jobs.ModeAudio, Items: []jobs.Item{{Title: "x"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Begin(ctx, tc.req)
			if jobs.KindOf(err) != jobs.KindInput {
				t.Fatalf("err = %v, want input error", err)
			}
		})
	}
	assertEmptyDir(t, root)
	if o.Jobs().Len() != 0 {
		t.Fatalf("rejected requests registered %d jobs", o.Jobs().Len())
	}
}

func TestBeginRejectsTrackedJob(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	req := BatchRequest{JobID: "job-1", Mode: jobs.ModeAudio, Items: []jobs.Item{item("a")}}

	b, err := o.Begin(context.Background(), req)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer b.finish()

	if _, err := o.Begin(context.Background(), req); !errors.Is(err, jobs.ErrJobExists) {
		t.Fatalf("second begin err = %v, want ErrJobExists", err)
	}
	if got := o.Jobs().Status("job-1"); got != jobs.StatusRunning {
		t.Fatalf("status = %s, want running", got)
	}
}

func TestBeginGeneratesJobID(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	b, err := o.Begin(context.Background(), BatchRequest{Mode: jobs.ModeVideo, Items: []jobs.Item{item("a")}})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer b.finish()
	if len(b.ID()) != 26 {
		t.Fatalf("generated id %q is not a ULID", b.ID())
	}
}

func TestBeginSetupFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := ytdlp.Runner{Binary: ytdlptest.Binary(t)}
	o := New(r, jobs.NewRegistry(time.Minute), Options{TempRoot: blocker})

	b, err := o.Begin(context.Background(), BatchRequest{JobID: "no-room", Mode: jobs.ModeAudio, Items: []jobs.Item{item("a")}})
	if b != nil {
		t.Fatal("batch returned despite setup failure")
	}
	if jobs.KindOf(err) != jobs.KindSetup {
		t.Fatalf("err = %v, want setup error", err)
	}
	if got := o.Jobs().Status("no-room"); got != jobs.StatusError {
		t.Fatalf("status = %s, want error", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].IsDir() {
		t.Fatalf("unexpected entries left in %s: %v", dir, entries)
	}
}

func TestStreamWithFailingItem(t *testing.T) {
	o, root := newTestOrchestrator(t)
	ctx := context.Background()

	b, err := o.Begin(ctx, BatchRequest{
		JobID: "mixed",
		Mode:  jobs.ModeAudio,
		Items: []jobs.Item{item("one"), item("fail"), item("three")},
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var buf bytes.Buffer
	rep, err := b.Stream(ctx, &buf)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if rep.Archived != 2 || rep.Failed != 1 || rep.Status != jobs.StatusDone {
		t.Fatalf("report = %+v", rep)
	}

	entries := readArchive(t, buf.Bytes())
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if got := entries["one.m4a"]; got != ytdlptest.Payload(item("one").URL) {
		t.Fatalf("one.m4a = %q", got)
	}
	if _, ok := entries["three.m4a"]; !ok {
		t.Fatal("three.m4a missing")
	}
	var diag string
	for name, body := range entries {
		if strings.HasPrefix(name, "error-") && strings.HasSuffix(name, ".txt") {
			diag = body
		}
	}
	if !strings.Contains(diag, "Failed to download item "+item("fail").URL) {
		t.Fatalf("diagnostic = %q", diag)
	}
	if got := o.Jobs().Status("mixed"); got != jobs.StatusDone {
		t.Fatalf("status = %s, want done", got)
	}
	assertEmptyDir(t, root)
}

func TestStreamMissingOutputWritesDiagnostic(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	b, err := o.Begin(ctx, BatchRequest{Mode: jobs.ModeVideo, Items: []jobs.Item{item("none")}})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var buf bytes.Buffer
	rep, err := b.Stream(ctx, &buf)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if rep.Failed != 1 || rep.Archived != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if entries := readArchive(t, buf.Bytes()); len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 diagnostic", len(entries))
	}
}

func TestStreamDisambiguatesNames(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	items := []jobs.Item{
		{URL: "https://example.com/watch?v=a", Title: "Same"},
		{URL: "https://example.com/watch?v=b", Title: "Same"},
		{URL: "https://example.com/watch?v=c", Title: "Same (1)"},
	}
	b, err := o.Begin(ctx, BatchRequest{Mode: jobs.ModeVideo, Items: items})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var buf bytes.Buffer
	if _, err := b.Stream(ctx, &buf); err != nil {
		t.Fatalf("stream: %v", err)
	}
	entries := readArchive(t, buf.Bytes())
	for _, name := range []string{"Same.mp4", "Same (1).mp4", "Same (1) (1).mp4"} {
		if _, ok := entries[name]; !ok {
			t.Fatalf("entry %q missing", name)
		}
	}
	if entries["Same (1).mp4"] != ytdlptest.Payload(items[1].URL) {
		t.Fatalf("Same (1).mp4 holds the wrong item: %q", entries["Same (1).mp4"])
	}
}

// signallingRetriever reports each spawned process on started.
type signallingRetriever struct {
	ytdlp.Runner
	started chan *proc.Process
}

func (r signallingRetriever) Start(ctx context.Context, sourceURL string, mode jobs.Mode, outDir string) (*ytdlp.Run, error) {
	run, err := r.Runner.Start(ctx, sourceURL, mode, outDir)
	if err == nil {
		r.started <- run.Process
	}
	return run, err
}

func TestStreamCancelledMidBatch(t *testing.T) {
	root := t.TempDir()
	rr := signallingRetriever{
		Runner:  ytdlp.Runner{Binary: ytdlptest.Binary(t), Grace: 200 * time.Millisecond},
		started: make(chan *proc.Process, 4),
	}
	o := New(rr, jobs.NewRegistry(time.Minute), Options{TempRoot: root, Grace: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, err := o.Begin(ctx, BatchRequest{
		JobID: "cancel-me",
		Mode:  jobs.ModeAudio,
		Items: []jobs.Item{item("one"), item("slow"), item("three")},
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	var (
		rep     Report
		errStrm error
		wg      sync.WaitGroup
		buf     bytes.Buffer
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		rep, errStrm = b.Stream(ctx, &buf)
	}()

	<-rr.started // item one
	slow := <-rr.started
	cancel()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not return after cancellation")
	}

	if !errors.Is(errStrm, ErrCancelled) {
		t.Fatalf("stream err = %v, want ErrCancelled", errStrm)
	}
	if rep.Status != jobs.StatusCancelled || rep.Archived != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !slow.Exited() || !slow.Terminated() {
		t.Fatal("slow process was not terminated")
	}
	if len(rr.started) != 0 {
		t.Fatal("an item was spawned after cancellation")
	}
	if got := o.Jobs().Status("cancel-me"); got != jobs.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	if b.active.len() != 0 {
		t.Fatalf("%d processes still tracked", b.active.len())
	}
	assertEmptyDir(t, root)

	// terminal status survives a late completion attempt
	b.finish()
	if got := o.Jobs().Status("cancel-me"); got != jobs.StatusCancelled {
		t.Fatalf("status after finish = %s", got)
	}
}

type brokenWriter struct{ n int }

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, errors.New("broken pipe")
	}
	w.n -= len(p)
	return len(p), nil
}

func TestStreamWriteFailureCancels(t *testing.T) {
	o, root := newTestOrchestrator(t)
	ctx := context.Background()
	b, err := o.Begin(ctx, BatchRequest{JobID: "gone", Mode: jobs.ModeAudio, Items: []jobs.Item{item("one"), item("two")}})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rep, err := b.Stream(ctx, &brokenWriter{})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if rep.Status != jobs.StatusCancelled {
		t.Fatalf("report = %+v", rep)
	}
	if got := o.Jobs().Status("gone"); got != jobs.StatusCancelled {
		t.Fatalf("status = %s", got)
	}
	assertEmptyDir(t, root)
}

func TestFetch(t *testing.T) {
	o, root := newTestOrchestrator(t)
	src := "https://example.com/watch?v=clip"

	a, err := o.Fetch(context.Background(), SingleRequest{URL: src, Mode: jobs.ModeVideo, Title: "My: clip"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if a.Name != "My: clip.mp4" || a.SafeName != "My_ clip.mp4" {
		t.Fatalf("names = %q, %q", a.Name, a.SafeName)
	}
	if a.Size != int64(len(ytdlptest.Payload(src))) {
		t.Fatalf("size = %d", a.Size)
	}
	f, err := a.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(f)
	f.Close()
	if string(body) != ytdlptest.Payload(src) {
		t.Fatalf("body = %q", body)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	assertEmptyDir(t, root)
}

func TestFetchUsesSavedTitle(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	a, err := o.Fetch(context.Background(), SingleRequest{URL: "https://example.com/watch?v=song", Mode: jobs.ModeAudio})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer a.Close()
	if a.Name != "song.m4a" {
		t.Fatalf("name = %q", a.Name)
	}
}

func TestFetchFailureCleansUp(t *testing.T) {
	o, root := newTestOrchestrator(t)
	_, err := o.Fetch(context.Background(), SingleRequest{URL: "https://example.com/watch?v=fail", Mode: jobs.ModeAudio})
	if jobs.KindOf(err) != jobs.KindRetrieval {
		t.Fatalf("err = %v, want retrieval error", err)
	}
	var ee *ytdlp.ExitError
	if !errors.As(err, &ee) || ee.Code != 1 {
		t.Fatalf("err = %v, want exit code 1", err)
	}
	assertEmptyDir(t, root)

	if _, err := o.Fetch(context.Background(), SingleRequest{Mode: jobs.ModeAudio}); jobs.KindOf(err) != jobs.KindInput {
		t.Fatalf("missing url err = %v", err)
	}
}

func TestNameTable(t *testing.T) {
	n := make(nameTable)
	got := []string{
		n.claim("a.mp4"),
		n.claim("a.mp4"),
		n.claim("a.mp4"),
		n.claim("b"),
		n.claim("b"),
	}
	want := []string{"a.mp4", "a (1).mp4", "a (2).mp4", "b", "b (1)"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("claim %d = %q, want %q", i, got[i], want[i])
		}
	}
}
