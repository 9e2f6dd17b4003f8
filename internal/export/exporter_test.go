package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/toolchain"
)

func TestConcatArgs(t *testing.T) {
	segs := []project.Segment{
		{ID: "a", Start: 5, End: 10},
		{ID: "b", Start: 0, End: 2.5},
	}

	got := strings.Join(ConcatArgs("in.mp4", segs, "out.mp4"), " ")
	want := "-y -ss 5 -t 5 -i in.mp4 -ss 0 -t 2.5 -i in.mp4 " +
		"-filter_complex [0:v][0:a][1:v][1:a]concat=n=2:v=1:a=1[outv][outa] " +
		"-map [outv] -map [outa] -c:v libx264 -c:a aac out.mp4"
	if got != want {
		t.Errorf("ConcatArgs() =\n%s\nwant\n%s", got, want)
	}
}

type fakeRunner struct {
	bin    string
	args   []string
	result toolchain.RunResult
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args []string, stdout io.Writer) toolchain.RunResult {
	f.bin = bin
	f.args = args
	if f.result.IsSuccess() {
		os.WriteFile(args[len(args)-1], []byte("rendered"), 0644)
	}
	return f.result
}

func TestRenderer(t *testing.T) {
	runner := &fakeRunner{}
	r := NewRenderer("ffmpeg", runner, slog.New(slog.DiscardHandler))

	if err := r.Render(context.Background(), "in.mp4", nil, "out.mp4"); !errors.Is(err, ErrNoSegments) {
		t.Errorf("Render(no segments) error = %v", err)
	}
	if runner.bin != "" {
		t.Error("ffmpeg should not run without segments")
	}

	runner.result = toolchain.RunResult{ExitCode: 1, StderrTail: "Invalid argument"}
	out := filepath.Join(t.TempDir(), "out.mp4")
	err := r.Render(context.Background(), "in.mp4", []project.Segment{{Start: 0, End: 1}}, out)
	if err == nil || !strings.Contains(err.Error(), "Invalid argument") {
		t.Errorf("Render() error = %v, want ffmpeg stderr", err)
	}
}

type videoDir string

func (d videoDir) VideoPath(id string) string { return filepath.Join(string(d), id+".mp4") }

type fakeArchiver struct {
	keys []string
	body []byte
	err  error
}

func (a *fakeArchiver) Archive(ctx context.Context, key, path, contentType string) error {
	a.keys = append(a.keys, key)
	a.body, _ = os.ReadFile(path)
	return a.err
}

type fakeRecorder struct {
	formats []string
	keys    []string
}

func (r *fakeRecorder) RecordExport(ctx context.Context, projectID, format string, n int, key string) error {
	r.formats = append(r.formats, format)
	r.keys = append(r.keys, key)
	return nil
}

func newTestExporter(t *testing.T, archiver Archiver) (*Exporter, *fakeRunner, *fakeRecorder, videoDir) {
	t.Helper()
	dir := videoDir(t.TempDir())
	runner := &fakeRunner{}
	recorder := &fakeRecorder{}
	logger := slog.New(slog.DiscardHandler)
	cfg := Config{
		Renderer: NewRenderer("ffmpeg", runner, logger),
		Videos:   dir,
		Recorder: recorder,
		WorkDir:  t.TempDir(),
		Logger:   logger,
	}
	if archiver != nil {
		cfg.Archiver = archiver
	}
	return NewExporter(cfg), runner, recorder, dir
}

func TestExporter_Validation(t *testing.T) {
	e, runner, _, dir := newTestExporter(t, nil)
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := e.Export(ctx, &project.Project{ID: "p1"}, FormatMP4, &buf)
	if !errors.Is(err, ErrNoSegments) {
		t.Errorf("Export(no segments) error = %v, want ErrNoSegments", err)
	}

	p := &project.Project{ID: "p1", Segments: []project.Segment{{Start: 0, End: 1}}}
	_, err = e.Export(ctx, p, FormatMP4, &buf)
	if !errors.Is(err, ErrVideoMissing) {
		t.Errorf("Export(no video) error = %v, want ErrVideoMissing", err)
	}
	if runner.bin != "" || buf.Len() != 0 {
		t.Error("nothing should run or be written on validation failure")
	}

	os.WriteFile(dir.VideoPath("p1"), []byte("v"), 0644)
	runner.result = toolchain.RunResult{ExitCode: 1, StderrTail: "boom"}
	if _, err := e.Export(ctx, p, FormatMP4, &buf); err == nil {
		t.Error("Export() should fail when ffmpeg fails")
	}
	if buf.Len() != 0 {
		t.Error("failed render must not write output")
	}
}

func TestExporter_MP4(t *testing.T) {
	archiver := &fakeArchiver{}
	e, runner, recorder, dir := newTestExporter(t, archiver)
	os.WriteFile(dir.VideoPath("p1"), []byte("v"), 0644)

	p := &project.Project{ID: "p1", Name: "Trip", Segments: []project.Segment{
		{ID: "b", Start: 20, End: 25},
		{ID: "a", Start: 0, End: 3},
	}}

	var buf bytes.Buffer
	result, err := e.Export(context.Background(), p, FormatMP4, &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if buf.String() != "rendered" {
		t.Errorf("body = %q", buf.String())
	}
	if result.SegmentCount != 2 || result.Bytes != int64(len("rendered")) {
		t.Errorf("result = %+v", result)
	}

	// stored order, not time order
	if runner.args[2] != "20" {
		t.Errorf("first input starts at %s, want 20", runner.args[2])
	}

	if len(archiver.keys) != 1 || !strings.HasPrefix(archiver.keys[0], "p1/") || string(archiver.body) != "rendered" {
		t.Errorf("archive = %v %q", archiver.keys, archiver.body)
	}
	if result.ObjectKey != archiver.keys[0] {
		t.Errorf("ObjectKey = %q", result.ObjectKey)
	}
	if len(recorder.formats) != 1 || recorder.formats[0] != "mp4" || recorder.keys[0] != result.ObjectKey {
		t.Errorf("recorded = %v %v", recorder.formats, recorder.keys)
	}

	entries, _ := os.ReadDir(e.workDir)
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned: %d entries", len(entries))
	}
}

func TestExporter_ArchiveFailureIsNotFatal(t *testing.T) {
	e, _, _, dir := newTestExporter(t, &fakeArchiver{err: errors.New("access denied")})
	os.WriteFile(dir.VideoPath("p1"), []byte("v"), 0644)

	p := &project.Project{ID: "p1", Segments: []project.Segment{{Start: 0, End: 1}}}
	var buf bytes.Buffer
	result, err := e.Export(context.Background(), p, FormatMP4, &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.ObjectKey != "" {
		t.Errorf("ObjectKey = %q, want empty after failed archive", result.ObjectKey)
	}
}

func TestExporter_EDL(t *testing.T) {
	e, runner, recorder, dir := newTestExporter(t, nil)
	os.WriteFile(dir.VideoPath("p1"), []byte("v"), 0644)

	p := &project.Project{ID: "p1", Name: "Cut", URL: "https://youtu.be/x", Segments: []project.Segment{{Start: 1, End: 2}}}
	var buf bytes.Buffer
	result, err := e.Export(context.Background(), p, FormatEDL, &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "TITLE: Cut\n") {
		t.Errorf("edl = %q", buf.String())
	}
	if result.Format != FormatEDL || runner.bin != "" {
		t.Errorf("EDL export ran ffmpeg or wrong format: %+v", result)
	}
	if recorder.formats[0] != "edl" {
		t.Errorf("recorded format = %v", recorder.formats)
	}
}

func TestExporter_EDLWithoutLocalVideo(t *testing.T) {
	e, runner, _, _ := newTestExporter(t, nil)

	p := &project.Project{ID: "p1", Name: "Cut", URL: "https://youtu.be/x", Segments: []project.Segment{{Start: 1, End: 2}}}
	var buf bytes.Buffer
	if _, err := e.Export(context.Background(), p, FormatEDL, &buf); err != nil {
		t.Fatalf("Export(edl) error = %v", err)
	}
	if !strings.Contains(buf.String(), "https://youtu.be/x") || runner.bin != "" {
		t.Errorf("edl = %q, ffmpeg bin = %q", buf.String(), runner.bin)
	}

	buf.Reset()
	_, err := e.Export(context.Background(), &project.Project{ID: "p2", Segments: []project.Segment{{Start: 1, End: 2}}}, FormatEDL, &buf)
	if !errors.Is(err, ErrVideoMissing) {
		t.Errorf("Export(edl, no source) error = %v, want ErrVideoMissing", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written without a source")
	}
}
