package download

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snipper/snipper/internal/playback"
	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/project"
)

type fakeProjects struct {
	mu       sync.Mutex
	projects map[string]*project.Project
}

func newFakeProjects(ps ...*project.Project) *fakeProjects {
	f := &fakeProjects{projects: make(map[string]*project.Project)}
	for _, p := range ps {
		f.projects[p.ID] = p
	}
	return f
}

func (f *fakeProjects) Get(ctx context.Context, id string) (*project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, project.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) RenameIfDefault(ctx context.Context, id, title string) (*project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[id]
	if title != "" && p.HasDefaultName() {
		p.Name = title
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) AttachVideo(ctx context.Context, id string, video project.VideoInfo) (*project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[id]
	p.VideoPath = video.Path
	p.Duration = video.Duration
	p.Title = video.Title
	cp := *p
	return &cp, nil
}

type fakeFetcher struct {
	gate   chan struct{}
	meta   VideoMeta
	events []progress.Event
	err    error
}

func (f *fakeFetcher) Metadata(ctx context.Context, url string) (*VideoMeta, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	meta := f.meta
	return &meta, nil
}

func (f *fakeFetcher) Download(ctx context.Context, url, dir string, onProgress func(progress.Event)) (string, error) {
	for _, ev := range f.events {
		onProgress(ev)
	}
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(path, []byte("fake video"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

type fixture struct {
	broker   *MemoryBroker
	projects *fakeProjects
	videos   *playback.FileServer
	manager  *Manager
}

func newFixture(t *testing.T, fetcher Fetcher, ps ...*project.Project) *fixture {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	f := &fixture{
		broker:   NewMemoryBroker(),
		projects: newFakeProjects(ps...),
		videos:   playback.NewFileServer(root, logger),
	}
	f.manager = NewManager(Config{
		Broker:            f.broker,
		Fetcher:           fetcher,
		Projects:          f.projects,
		Videos:            f.videos,
		TempDir:           t.TempDir(),
		Logger:            logger,
		KeepaliveInterval: 20 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		f.manager.Shutdown(ctx)
	})
	return f
}

func (f *fixture) subscribers(id string) int {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	return len(f.broker.subs[id])
}

func parseEvents(t *testing.T, body string) []progress.Event {
	t.Helper()
	var events []progress.Event
	for _, chunk := range strings.Split(body, "\n\n") {
		data, ok := strings.CutPrefix(chunk, "data: ")
		if !ok {
			continue
		}
		var ev progress.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("bad event %q: %v", data, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestMemoryBroker_Lock(t *testing.T) {
	b := NewMemoryBroker()
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	if err := b.Acquire(ctx, "p1"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := b.Acquire(ctx, "p1"); !errors.Is(err, ErrInProgress) {
		t.Errorf("second Acquire() error = %v, want ErrInProgress", err)
	}
	if err := b.Acquire(ctx, "p2"); err != nil {
		t.Errorf("Acquire() of another project error = %v", err)
	}

	now = now.Add(59 * time.Second)
	if err := b.Acquire(ctx, "p1"); !errors.Is(err, ErrInProgress) {
		t.Errorf("Acquire() with fresh heartbeat error = %v, want ErrInProgress", err)
	}

	now = now.Add(2 * time.Second)
	status, _ := b.Status(ctx, "p1")
	if !status.Stale(now) {
		t.Fatal("lock should be stale after 61s without heartbeat")
	}
	if err := b.Acquire(ctx, "p1"); err != nil {
		t.Errorf("Acquire() over stale lock error = %v", err)
	}

	if err := b.Release(ctx, "p1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	status, _ = b.Status(ctx, "p1")
	if status.Active {
		t.Error("lock still active after Release()")
	}
}

func TestMemoryBroker_LockExpires(t *testing.T) {
	b := NewMemoryBroker()
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Acquire(ctx, "p1")
	now = now.Add(LockTTL)
	status, _ := b.Status(ctx, "p1")
	if status.Active {
		t.Error("lock should expire after LockTTL")
	}
}

func TestMemoryBroker_PubSub(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "p1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	other, _ := b.Subscribe(ctx, "p2")
	defer other.Close()

	b.Publish(ctx, "p1", progress.Event{Status: progress.StatusStarted})
	b.Publish(ctx, "p1", progress.Event{Status: progress.StatusComplete, Title: "t"})

	if ev := <-sub.Events(); ev.Status != progress.StatusStarted {
		t.Errorf("first event = %v", ev.Status)
	}
	if ev := <-sub.Events(); ev.Status != progress.StatusComplete || ev.Title != "t" {
		t.Errorf("second event = %+v", ev)
	}
	select {
	case ev := <-other.Events():
		t.Errorf("other project received %+v", ev)
	default:
	}

	sub.Close()
	if _, ok := <-sub.Events(); ok {
		t.Error("Events() should close after Close()")
	}
	if err := b.Publish(ctx, "p1", progress.Event{Status: progress.StatusStarted}); err != nil {
		t.Errorf("Publish() after unsubscribe error = %v", err)
	}
}

func TestLockStatus_Stale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name   string
		status LockStatus
		want   bool
	}{
		{"inactive", LockStatus{}, false},
		{"no heartbeat", LockStatus{Active: true}, true},
		{"fresh", LockStatus{Active: true, HeartbeatAt: now.Add(-10 * time.Second)}, false},
		{"exactly 60s", LockStatus{Active: true, HeartbeatAt: now.Add(-60 * time.Second)}, false},
		{"old", LockStatus{Active: true, HeartbeatAt: now.Add(-61 * time.Second)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Stale(now); got != tt.want {
				t.Errorf("Stale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseProgressLine(t *testing.T) {
	ev, ok := parseProgressLine("[snipper]downloading|524288|1048576|NA|  50.0%|   1.20MiB/s|00:03")
	if !ok {
		t.Fatal("progress line not recognised")
	}
	if ev.Downloaded != 524288 || ev.Total != 1048576 {
		t.Errorf("bytes = %d/%d", ev.Downloaded, ev.Total)
	}
	if ev.Speed != "1.20MiB/s" || ev.ETA != "00:03" {
		t.Errorf("speed/eta = %q/%q", ev.Speed, ev.ETA)
	}
	if ev.Percent == nil || ev.Percent.Text != "50.0%" {
		t.Errorf("percent = %+v", ev.Percent)
	}

	ev, ok = parseProgressLine("[snipper]downloading|100|NA|400.5|NA|NA|NA")
	if !ok || ev.Total != 400 || ev.Percent != nil || ev.Speed != "" {
		t.Errorf("estimate fallback = %+v, %v", ev, ok)
	}

	for _, line := range []string{
		"[download] Destination: video.mp4",
		"[snipper]finished|1|1|NA|100%|NA|NA",
		"[snipper]downloading|1|2",
	} {
		if _, ok := parseProgressLine(line); ok {
			t.Errorf("parseProgressLine(%q) should be ignored", line)
		}
	}
}

func TestManager_StartErrors(t *testing.T) {
	f := newFixture(t, &fakeFetcher{}, &project.Project{ID: "nourl", Name: "x"})
	ctx := context.Background()

	if err := f.manager.Start(ctx, "missing"); !errors.Is(err, project.ErrNotFound) {
		t.Errorf("Start(missing) error = %v, want ErrNotFound", err)
	}
	if err := f.manager.Start(ctx, "nourl"); !errors.Is(err, ErrNoURL) {
		t.Errorf("Start(nourl) error = %v, want ErrNoURL", err)
	}
}

func TestManager_ConflictWhileRunning(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{})}
	f := newFixture(t, fetcher, &project.Project{ID: "p1", Name: project.DefaultName, URL: "https://example.com/v"})
	ctx := context.Background()

	if err := f.manager.Start(ctx, "p1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.manager.Start(ctx, "p1"); !errors.Is(err, ErrInProgress) {
		t.Errorf("second Start() error = %v, want ErrInProgress", err)
	}
	if n := f.manager.ActiveCount(); n != 1 {
		t.Errorf("ActiveCount() = %d, want 1", n)
	}
	close(fetcher.gate)
}

func TestManager_DownloadAndStream(t *testing.T) {
	fetcher := &fakeFetcher{
		gate: make(chan struct{}),
		meta: VideoMeta{Title: "Big Buck Bunny", Duration: 596.5},
		events: []progress.Event{
			{Status: progress.StatusDownloading, Downloaded: 500, Total: 1000, Speed: "1MiB/s", ETA: "00:01"},
		},
	}
	f := newFixture(t, fetcher, &project.Project{ID: "p1", Name: project.DefaultName, URL: "https://example.com/v"})
	ctx := context.Background()

	if err := f.manager.Start(ctx, "p1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec := httptest.NewRecorder()
	done := make(chan error, 1)
	go func() { done <- f.manager.Stream(ctx, "p1", rec) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.subscribers("p1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(fetcher.gate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stream() did not finish")
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, ": connected\n\n") {
		t.Errorf("stream should open with a connected comment, got %q", body)
	}

	events := parseEvents(t, body)
	var statuses []string
	for _, ev := range events {
		statuses = append(statuses, string(ev.Status))
	}
	// started may be published before the stream subscribes
	if got := strings.Join(statuses, ","); !strings.HasSuffix(got, "downloading,finished,complete") {
		t.Errorf("statuses = %s", got)
	}
	last := events[len(events)-1]
	if last.Title != "Big Buck Bunny" || last.Duration != 596.5 {
		t.Errorf("complete event = %+v", last)
	}

	p, _ := f.projects.Get(ctx, "p1")
	if p.Name != "Big Buck Bunny" {
		t.Errorf("project name = %q, want renamed to title", p.Name)
	}
	if p.VideoPath != "/projects/p1/video.mp4" {
		t.Errorf("video path = %q", p.VideoPath)
	}
	if _, err := os.Stat(f.videos.VideoPath("p1")); err != nil {
		t.Errorf("video not stored: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		status, _ := f.broker.Status(ctx, "p1")
		if !status.Active {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("lock not released after download")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_DownloadFailurePublishesError(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{}), err: errors.New("ERROR: Video unavailable")}
	f := newFixture(t, fetcher, &project.Project{ID: "p1", Name: "Mine", URL: "https://example.com/v"})
	ctx := context.Background()

	f.manager.Start(ctx, "p1")

	rec := httptest.NewRecorder()
	done := make(chan error, 1)
	go func() { done <- f.manager.Stream(ctx, "p1", rec) }()
	for f.subscribers("p1") == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	close(fetcher.gate)

	if err := <-done; err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events := parseEvents(t, rec.Body.String())
	last := events[len(events)-1]
	if last.Status != progress.StatusError || !strings.Contains(last.Error, "Video unavailable") {
		t.Errorf("last event = %+v, want error", last)
	}
}

func TestStream_NoDownload(t *testing.T) {
	f := newFixture(t, &fakeFetcher{}, &project.Project{ID: "p1", Name: "x"})

	rec := httptest.NewRecorder()
	if err := f.manager.Stream(context.Background(), "p1", rec); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	want := `data: {"status":"error","error":"No download in progress"}` + "\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if n := f.subscribers("p1"); n != 0 {
		t.Errorf("subscription leaked: %d", n)
	}
}

func TestStream_LateSubscriberGetsComplete(t *testing.T) {
	f := newFixture(t, &fakeFetcher{}, &project.Project{
		ID: "p1", Name: "x", VideoPath: "/projects/p1/video.mp4", Duration: 12, Title: "Clip",
	})

	rec := httptest.NewRecorder()
	f.manager.Stream(context.Background(), "p1", rec)

	events := parseEvents(t, rec.Body.String())
	if len(events) != 1 || events[0].Status != progress.StatusComplete || events[0].Title != "Clip" {
		t.Errorf("events = %+v, want one complete", events)
	}
}

func TestStream_Stale(t *testing.T) {
	f := newFixture(t, &fakeFetcher{}, &project.Project{ID: "p1", Name: "x"})
	now := time.Unix(1_700_000_000, 0)
	f.broker.now = func() time.Time { return now }
	f.broker.Acquire(context.Background(), "p1")

	now = now.Add(2 * time.Minute)
	f.manager.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	f.manager.Stream(context.Background(), "p1", rec)

	events := parseEvents(t, rec.Body.String())
	if len(events) != 1 || events[0].Error != "Stale download detected" {
		t.Errorf("events = %+v, want stale error", events)
	}
}

func TestStream_Keepalive(t *testing.T) {
	f := newFixture(t, &fakeFetcher{}, &project.Project{ID: "p1", Name: "x"})
	f.broker.Acquire(context.Background(), "p1")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	if err := f.manager.Stream(ctx, "p1", rec); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !strings.Contains(rec.Body.String(), ": keepalive ") {
		t.Errorf("no keepalive in %q", rec.Body.String())
	}
}
