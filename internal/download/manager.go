package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/snipper/snipper/internal/playback"
	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/project"
)

// ScratchDirName is the directory under the temp dir holding one scratch
// directory per running download.
const ScratchDirName = "youtube-snipper"

// Projects is the part of the project service a download touches.
type Projects interface {
	Get(ctx context.Context, id string) (*project.Project, error)
	RenameIfDefault(ctx context.Context, id, title string) (*project.Project, error)
	AttachVideo(ctx context.Context, id string, video project.VideoInfo) (*project.Project, error)
}

// VideoStore locates project videos on disk.
type VideoStore interface {
	ProjectDir(projectID string) string
	VideoPath(projectID string) string
}

type Config struct {
	Broker   Broker
	Fetcher  Fetcher
	Projects Projects
	Videos   VideoStore
	TempDir  string // parent of per-download scratch directories
	Logger   *slog.Logger

	KeepaliveInterval time.Duration
}

// Manager starts downloads and streams their progress.
type Manager struct {
	broker    Broker
	fetcher   Fetcher
	projects  Projects
	videos    VideoStore
	tempDir   string
	logger    *slog.Logger
	keepalive time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active sync.Map // project id -> struct{}, downloads run by this process
}

func NewManager(cfg Config) *Manager {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		broker:    cfg.Broker,
		fetcher:   cfg.Fetcher,
		projects:  cfg.Projects,
		videos:    cfg.Videos,
		tempDir:   filepath.Join(cfg.TempDir, ScratchDirName),
		logger:    cfg.Logger,
		keepalive: cfg.KeepaliveInterval,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches a background download of the project's URL. It returns
// ErrInProgress when another download of the project is alive.
func (m *Manager) Start(ctx context.Context, projectID string) error {
	p, err := m.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.URL == "" {
		return ErrNoURL
	}

	if err := m.broker.Acquire(ctx, projectID); err != nil {
		return err
	}

	m.active.Store(projectID, struct{}{})
	m.wg.Add(1)
	go m.run(p)

	m.logger.Info("download started", "project_id", projectID, "url", p.URL)
	return nil
}

// ActiveCount is the number of downloads running in this process.
func (m *Manager) ActiveCount() int {
	n := 0
	m.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown cancels running downloads and waits for their workers to
// release their locks.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(p *project.Project) {
	defer m.wg.Done()
	defer m.active.Delete(p.ID)

	ctx := m.ctx
	logger := m.logger.With("project_id", p.ID)

	defer func() {
		// the lock must go even when the worker is cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.broker.Release(releaseCtx, p.ID); err != nil {
			logger.Error("failed to release download lock", "error", err)
		}
	}()

	if err := m.download(ctx, p, logger); err != nil {
		logger.Error("download failed", "error", err)
		m.publish(ctx, p.ID, progress.Event{Status: progress.StatusError, Error: err.Error()})
	}
}

func (m *Manager) download(ctx context.Context, p *project.Project, logger *slog.Logger) error {
	m.publish(ctx, p.ID, progress.Event{Status: progress.StatusStarted})

	meta, err := m.fetcher.Metadata(ctx, p.URL)
	if err != nil {
		return err
	}
	if _, err := m.projects.RenameIfDefault(ctx, p.ID, meta.Title); err != nil {
		logger.Warn("failed to rename project", "error", err)
	}

	scratch := filepath.Join(m.tempDir, p.ID)
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	var lastBeat time.Time
	onProgress := func(ev progress.Event) {
		if now := m.now(); now.Sub(lastBeat) >= HeartbeatInterval {
			lastBeat = now
			if err := m.broker.Heartbeat(ctx, p.ID); err != nil {
				logger.Warn("heartbeat failed", "error", err)
			}
		}
		m.publish(ctx, p.ID, ev)
	}

	file, err := m.fetcher.Download(ctx, p.URL, scratch, onProgress)
	if err != nil {
		return err
	}
	m.publish(ctx, p.ID, progress.Event{Status: progress.StatusFinished})

	if err := os.MkdirAll(m.videos.ProjectDir(p.ID), 0755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	if err := moveFile(file, m.videos.VideoPath(p.ID)); err != nil {
		return fmt.Errorf("store video: %w", err)
	}

	if _, err := m.projects.AttachVideo(ctx, p.ID, project.VideoInfo{
		Path:     playback.PublicPath(p.ID),
		Duration: meta.Duration,
		Title:    meta.Title,
	}); err != nil {
		return err
	}

	m.publish(ctx, p.ID, progress.Event{
		Status:   progress.StatusComplete,
		Duration: meta.Duration,
		Title:    meta.Title,
	})
	logger.Info("download complete", "title", meta.Title, "duration", meta.Duration)
	return nil
}

func (m *Manager) publish(ctx context.Context, projectID string, ev progress.Event) {
	if ctx.Err() != nil {
		// still tell subscribers why the download stopped
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), time.Second)
		defer cancel()
	}
	if err := m.broker.Publish(ctx, projectID, ev); err != nil {
		m.logger.Warn("failed to publish progress", "project_id", projectID, "status", ev.Status, "error", err)
	}
}

// moveFile renames src to dst and falls back to copying across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}
