package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/snipper/snipper/internal/project"
)

// Archiver keeps a copy of a rendered export under key.
type Archiver interface {
	Archive(ctx context.Context, key, path, contentType string) error
}

type Recorder interface {
	RecordExport(ctx context.Context, projectID, format string, segmentCount int, objectKey string) error
}

type VideoLocator interface {
	VideoPath(projectID string) string
}

type MP4Renderer interface {
	Render(ctx context.Context, video string, segs []project.Segment, output string) error
}

type Config struct {
	Renderer MP4Renderer
	Videos   VideoLocator
	Archiver Archiver // optional
	Recorder Recorder // optional
	WorkDir  string
	Logger   *slog.Logger
}

type Exporter struct {
	renderer MP4Renderer
	videos   VideoLocator
	archiver Archiver
	recorder Recorder
	workDir  string
	logger   *slog.Logger
	now      func() time.Time
}

func NewExporter(cfg Config) *Exporter {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Exporter{
		renderer: cfg.Renderer,
		videos:   cfg.Videos,
		archiver: cfg.Archiver,
		recorder: cfg.Recorder,
		workDir:  cfg.WorkDir,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Export renders p's segments in their stored order and writes the result
// to w. Nothing is written to w unless rendering succeeds.
func (e *Exporter) Export(ctx context.Context, p *project.Project, f Format, w io.Writer) (*Result, error) {
	if len(p.Segments) == 0 {
		return nil, ErrNoSegments
	}

	var (
		result *Result
		err    error
	)
	switch f {
	case FormatEDL:
		result, err = e.exportEDL(p, w)
	default:
		video := e.videos.VideoPath(p.ID)
		if info, statErr := os.Stat(video); statErr != nil || info.IsDir() {
			return nil, ErrVideoMissing
		}
		result, err = e.exportMP4(ctx, p, video, w)
	}
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		if err := e.recorder.RecordExport(ctx, p.ID, string(f), result.SegmentCount, result.ObjectKey); err != nil {
			e.logger.Warn("failed to record export", "project_id", p.ID, "error", err)
		}
	}
	return result, nil
}

func (e *Exporter) exportEDL(p *project.Project, w io.Writer) (*Result, error) {
	// the EDL references the source instead of reading it
	media := p.URL
	if media == "" {
		media = p.VideoPath
	}
	if media == "" {
		return nil, ErrVideoMissing
	}
	n, err := io.WriteString(w, GenerateEDL(p.Segments, p.Name, media, DefaultFrameRate))
	if err != nil {
		return nil, fmt.Errorf("write edl: %w", err)
	}
	return &Result{Format: FormatEDL, SegmentCount: len(p.Segments), Bytes: int64(n)}, nil
}

func (e *Exporter) exportMP4(ctx context.Context, p *project.Project, video string, w io.Writer) (*Result, error) {
	if err := os.MkdirAll(e.workDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	tmp, err := os.CreateTemp(e.workDir, "export-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	output := tmp.Name()
	tmp.Close()
	defer os.Remove(output)

	if err := e.renderer.Render(ctx, video, p.Segments, output); err != nil {
		return nil, err
	}

	result := &Result{Format: FormatMP4, SegmentCount: len(p.Segments)}

	if e.archiver != nil {
		key := fmt.Sprintf("%s/%s.mp4", p.ID, e.now().UTC().Format("20060102T150405Z"))
		if err := e.archiver.Archive(ctx, key, output, FormatMP4.ContentType()); err != nil {
			e.logger.Warn("failed to archive export", "project_id", p.ID, "error", err)
		} else {
			result.ObjectKey = key
		}
	}

	file, err := os.Open(output)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(w, file)
	result.Bytes = n
	if err != nil {
		return result, fmt.Errorf("send export: %w", err)
	}

	e.logger.Info("export complete", "project_id", p.ID, "segments", result.SegmentCount, "bytes", n)
	return result, nil
}
