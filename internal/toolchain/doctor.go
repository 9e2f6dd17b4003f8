package toolchain

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultProbeTimeout = 10 * time.Second
)

// Doctor reports which media tools are installed and their versions.
type Doctor struct {
	runner  Runner
	ytdlp   string
	ffmpeg  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewDoctor(runner Runner, ytdlpBin, ffmpegBin string, logger *slog.Logger) *Doctor {
	return &Doctor{
		runner:  runner,
		ytdlp:   ytdlpBin,
		ffmpeg:  ffmpegBin,
		timeout: defaultProbeTimeout,
		logger:  logger,
	}
}

func (d *Doctor) Probe(ctx context.Context) *Capabilities {
	caps := &Capabilities{
		YtDlp:    d.probe(ctx, "yt-dlp", d.ytdlp, "--version"),
		FFmpeg:   d.probe(ctx, "ffmpeg", d.ffmpeg, "-version"),
		ProbedAt: time.Now(),
	}

	d.logger.Info("doctor probe complete",
		"yt_dlp", caps.YtDlp.Version,
		"ffmpeg", caps.FFmpeg.Version,
		"can_download", caps.CanDownload(),
		"can_export", caps.CanExport(),
	)
	return caps
}

func (d *Doctor) probe(ctx context.Context, name, bin, versionFlag string) ToolInfo {
	info := ToolInfo{Name: name}

	path, err := Resolve(bin, name)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Path = path

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var out bytes.Buffer
	result := d.runner.Run(ctx, path, []string{versionFlag}, &limitedWriter{w: &out, limit: 4096})
	if !result.IsSuccess() {
		info.Error = truncate(result.StderrTail, 256)
		return info
	}

	info.Available = true
	info.Version = parseVersion(out.String())
	return info
}

// parseVersion extracts the version from --version output. yt-dlp prints
// just the version; ffmpeg prints "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(output string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// CachedDoctor caches probe results so health checks do not spawn
// subprocesses on every request.
type CachedDoctor struct {
	doctor *Doctor
	ttl    time.Duration

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(doctor *Doctor) *CachedDoctor {
	return &CachedDoctor{doctor: doctor, ttl: defaultCacheTTL}
}

func (d *CachedDoctor) Get(ctx context.Context) *Capabilities {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

func (d *CachedDoctor) Refresh(ctx context.Context) *Capabilities {
	caps := d.doctor.Probe(ctx)

	d.mu.Lock()
	d.cached = caps
	d.mu.Unlock()
	return caps
}
