// Package session is the open editor for one project. It ties the clip
// editor, the playback sequencer and the download tracker to a player and a
// project store, guarding all of them with one lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/snipper/snipper/internal/editor"
	"github.com/snipper/snipper/internal/export"
	"github.com/snipper/snipper/internal/logging"
	"github.com/snipper/snipper/internal/playback"
	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/timeline"
)

const (
	// HandleWidth is how close, in pixels, a press must be to a clip edge to
	// resize it.
	HandleWidth = 6.0

	zoomStep = 1.25
)

var ErrNoSegments = errors.New("no segments to export")

type Store interface {
	Get(ctx context.Context, id string) (*project.Project, error)
	Put(ctx context.Context, p *project.Project) (*project.Project, error)
}

type Exporter interface {
	Export(ctx context.Context, id string, f export.Format, w io.Writer) error
}

type Config struct {
	ProjectID string
	Store     Store
	Initiator progress.Initiator
	Feed      progress.Feed
	Exporter  Exporter
	Player    playback.Player

	// Schedule defaults to the runtime timer.
	Schedule playback.Scheduler

	// Width is the track width in pixels.
	Width float64

	// AutoDownload starts the download when the project has a URL but no
	// video yet.
	AutoDownload bool

	// OnChange is called, without the session lock, after state changes that
	// did not come from a session method: progress, timers.
	OnChange func()

	Logger *slog.Logger
}

type Session struct {
	cfg     Config
	logger  *slog.Logger
	save    *persister
	tracker *progress.Tracker

	mu          sync.Mutex
	project     *project.Project
	editor      *editor.Editor
	sequencer   *playback.Sequencer
	viewport    timeline.Viewport
	width       float64
	currentTime float64
	playing     bool
	progress    progress.Snapshot
	lastErr     error
	closed      bool
}

// New loads the project and opens a session on it.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Schedule == nil {
		cfg.Schedule = playback.AfterFunc
	}

	p, err := cfg.Store.Get(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		logger:   logging.WithProjectID(logging.WithComponent(cfg.Logger, "session"), p.ID),
		project:  p,
		viewport: timeline.DefaultViewport(),
		width:    cfg.Width,
	}
	s.save = newPersister(func(ctx context.Context, snap *project.Project) error {
		_, err := cfg.Store.Put(ctx, snap)
		return err
	}, s.logger)

	s.editor = editor.New(p.Segments, p.Duration, editor.WithNotifier(s.segmentsChanged))
	s.sequencer = playback.NewSequencer(&trackedPlayer{s: s}, s.lockedSchedule)
	s.tracker = progress.NewTracker(p.ID, cfg.Initiator, cfg.Feed, progress.Listener{
		OnUpdate:   s.progressUpdated,
		OnComplete: s.downloadCompleted,
		OnFailure:  s.downloadFailed,
	}, s.logger)

	if cfg.AutoDownload && p.URL != "" && !p.HasVideo() {
		if err := s.Download(ctx); err != nil {
			s.logger.Warn("automatic download failed to start", "error", err)
		}
	}
	return s, nil
}

// Close stops playback and progress tracking and waits for pending saves.
func (s *Session) Close() {
	s.tracker.Close()

	s.mu.Lock()
	s.closed = true
	s.sequencer.Stop()
	s.mu.Unlock()

	s.save.Close()
}

// trackedPlayer forwards to the real player and mirrors the commands into
// session state. The sequencer only calls it with the session lock held.
type trackedPlayer struct {
	s *Session
}

func (p *trackedPlayer) SeekTo(t float64) {
	p.s.currentTime = t
	p.s.cfg.Player.SeekTo(t)
}

func (p *trackedPlayer) Play() {
	p.s.playing = true
	p.s.cfg.Player.Play()
}

func (p *trackedPlayer) Pause() {
	p.s.playing = false
	p.s.cfg.Player.Pause()
}

// lockedSchedule runs sequencer timer callbacks under the session lock.
func (s *Session) lockedSchedule(d time.Duration, fn func()) func() {
	return s.cfg.Schedule(d, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		fn()
		s.mu.Unlock()
		s.notify()
	})
}

func (s *Session) notify() {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange()
	}
}

// segmentsChanged runs inside editor calls, with the lock held.
func (s *Session) segmentsChanged(segs []project.Segment) {
	s.project.Segments = segs
	s.save.Submit(s.projectCopyLocked())
}

func (s *Session) projectCopyLocked() *project.Project {
	cp := *s.project
	cp.Segments = project.CopySegments(s.project.Segments)
	if cp.Segments == nil {
		cp.Segments = []project.Segment{}
	}
	return &cp
}

func (s *Session) projectorLocked() timeline.Projector {
	return timeline.NewProjector(s.viewport, s.width, s.editor.Duration())
}

// Player events.

func (s *Session) OnTimeUpdate(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.IsNaN(t) {
		return
	}
	s.currentTime = t
	s.sequencer.OnTimeUpdate(t)
	if s.playing {
		s.viewport = timeline.Follow(s.viewport, s.currentTime, s.editor.Duration())
	}
}

func (s *Session) OnDurationKnown(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 || math.IsNaN(d) || d == s.editor.Duration() {
		return
	}
	s.editor.SetDuration(d)
	s.project.Duration = d
	s.viewport = timeline.Pan(s.viewport, 0, d)
}

// Playback.

func (s *Session) TogglePlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.sequencer.Stop()
		s.playing = false
		s.cfg.Player.Pause()
		return
	}
	s.playing = true
	s.cfg.Player.Play()
}

// PlaySelected plays the selected clip once. It reports false when nothing
// is selected.
func (s *Session) PlaySelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.editor.Selected()
	if !ok {
		return false
	}
	s.sequencer.PlaySingle(seg)
	return true
}

func (s *Session) PlaySegment(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.editor.Segment(id)
	if !ok {
		return false
	}
	s.editor.Select(id)
	s.sequencer.PlaySingle(seg)
	return true
}

func (s *Session) PlayAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequencer.PlayAll(s.editor.Segments())
}

// Seek moves the playhead and cancels clip playback.
func (s *Session) Seek(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLocked(t)
}

// SeekBy moves the playhead relative to where it is.
func (s *Session) SeekBy(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLocked(s.currentTime + delta)
}

// SeekToPixel seeks to the time under px on the track.
func (s *Session) SeekToPixel(px float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLocked(s.projectorLocked().PixelsToTime(px))
}

func (s *Session) seekLocked(t float64) {
	t = math.Max(0, t)
	if d := s.editor.Duration(); d > 0 {
		t = math.Min(t, d)
	}
	s.sequencer.Stop()
	s.currentTime = t
	s.cfg.Player.SeekTo(t)
	s.viewport = timeline.Follow(s.viewport, t, s.editor.Duration())
}

// Editing.

// MarkSegment adds a clip at the playhead and selects it.
func (s *Session) MarkSegment() (project.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, err := s.editor.CreateSegmentAt(s.currentTime)
	if err != nil {
		return project.Segment{}, err
	}
	s.editor.Select(seg.ID)
	return seg, nil
}

func (s *Session) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Select(id)
}

func (s *Session) SelectNext() (project.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.SelectNext()
}

func (s *Session) DeleteSegment(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.DeleteSegment(id)
}

func (s *Session) DeleteSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.editor.Selected()
	if !ok {
		return false
	}
	return s.editor.DeleteSegment(seg.ID)
}

// PointerDown starts a drag on the clip under px and selects it. A press on
// empty track seeks there instead.
func (s *Session) PointerDown(px float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectorLocked()
	id, mode, ok := s.editor.HitTest(p, px, HandleWidth)
	if !ok {
		s.seekLocked(p.PixelsToTime(px))
		return
	}
	s.editor.Select(id)
	s.editor.BeginDrag(id, mode)
}

// PointerMove drags the active clip, or records the hover position.
func (s *Session) PointerMove(px float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectorLocked()
	if _, ok := s.editor.Dragging(); ok {
		s.editor.OnPointerMove(p, px)
		return
	}
	s.editor.Hover(p, px)
}

func (s *Session) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.EndDrag()
}

func (s *Session) PointerLeave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.ClearHover()
}

// Viewport.

// Wheel zooms around the pointer; positive deltaY zooms out.
func (s *Session) Wheel(px, deltaY float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = timeline.ApplyWheel(s.viewport, px, deltaY, s.width, s.editor.Duration())
}

// ZoomIn zooms around the playhead.
func (s *Session) ZoomIn() {
	s.zoomAtPlayhead(zoomStep)
}

func (s *Session) ZoomOut() {
	s.zoomAtPlayhead(1 / zoomStep)
}

func (s *Session) zoomAtPlayhead(factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectorLocked()
	px := math.Max(0, math.Min(p.TimeToPixels(s.currentTime), s.width))
	s.viewport = timeline.ZoomAt(s.viewport, px, factor, s.width, s.editor.Duration())
}

func (s *Session) SetWidth(width float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = math.Max(0, width)
}

// Download and export.

// Download starts downloading the project's video, or attaches to the
// download already running.
func (s *Session) Download(ctx context.Context) error {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()

	// a terminal event may already have been reported by the time Start
	// returns, so only a start failure is recorded here
	if err := s.tracker.Start(ctx); err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	return nil
}

// Export writes the cut to w after saving the current clips. An empty
// collection is refused without contacting the server.
func (s *Session) Export(ctx context.Context, f export.Format, w io.Writer) error {
	s.mu.Lock()
	empty := s.editor.Len() == 0
	id := s.project.ID
	s.mu.Unlock()
	if empty {
		return ErrNoSegments
	}

	if err := s.save.Flush(ctx); err != nil {
		return fmt.Errorf("save before export: %w", err)
	}
	if err := s.cfg.Exporter.Export(ctx, id, f, w); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// Tracker callbacks; none of them run under the tracker lock.

func (s *Session) progressUpdated(snap progress.Snapshot) {
	s.mu.Lock()
	s.progress = snap
	s.mu.Unlock()
	s.notify()
}

func (s *Session) downloadCompleted(r progress.Result) {
	s.mu.Lock()
	p := s.project
	p.VideoPath = playback.PublicPath(p.ID)
	if r.Duration > 0 {
		p.Duration = r.Duration
		s.editor.SetDuration(r.Duration)
	}
	if r.Title != "" {
		p.Title = r.Title
		if p.HasDefaultName() {
			p.Name = r.Title
		}
	}
	s.lastErr = nil
	s.save.Submit(s.projectCopyLocked())
	s.mu.Unlock()

	s.logger.Info("video ready", "duration", r.Duration, "title", r.Title)
	s.notify()
}

func (s *Session) downloadFailed(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}
