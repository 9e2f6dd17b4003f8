package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/toolchain"
)

const (
	DefaultFormat = "best[ext=mp4]"

	progressPrefix = "[snipper]"

	// fields: status|downloaded|total|total estimate|percent|speed|eta
	progressTemplate = "download:" + progressPrefix +
		"%(progress.status)s|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|" +
		"%(progress.total_bytes_estimate)s|%(progress._percent_str)s|" +
		"%(progress._speed_str)s|%(progress._eta_str)s"
)

// VideoMeta is the subset of yt-dlp's metadata the editor needs.
type VideoMeta struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

type Fetcher interface {
	Metadata(ctx context.Context, url string) (*VideoMeta, error)
	// Download saves the video into dir and returns the file path. onProgress
	// receives downloading events in order.
	Download(ctx context.Context, url, dir string, onProgress func(progress.Event)) (string, error)
}

// YtDlp drives the yt-dlp command line.
type YtDlp struct {
	bin    string
	format string
	runner toolchain.Runner
	logger *slog.Logger
}

func NewYtDlp(bin, format string, runner toolchain.Runner, logger *slog.Logger) *YtDlp {
	if format == "" {
		format = DefaultFormat
	}
	return &YtDlp{bin: bin, format: format, runner: runner, logger: logger}
}

func (y *YtDlp) Metadata(ctx context.Context, url string) (*VideoMeta, error) {
	var out bytes.Buffer
	result := y.runner.Run(ctx, y.bin, []string{"-J", "--no-playlist", "--no-warnings", url}, &out)
	if err := result.Err("yt-dlp"); err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}

	var meta VideoMeta
	if err := json.Unmarshal(out.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

func (y *YtDlp) Download(ctx context.Context, url, dir string, onProgress func(progress.Event)) (string, error) {
	args := []string{
		"-f", y.format,
		"--no-playlist",
		"--newline",
		"--progress",
		"--progress-template", progressTemplate,
		"-o", filepath.Join(dir, "video.%(ext)s"),
		url,
	}

	lines := toolchain.NewLineWriter(func(line string) {
		ev, ok := parseProgressLine(line)
		if ok && onProgress != nil {
			onProgress(ev)
		}
	})
	result := y.runner.Run(ctx, y.bin, args, lines)
	lines.Flush()
	if err := result.Err("yt-dlp"); err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	return findVideo(dir)
}

// parseProgressLine decodes one line printed by progressTemplate. Other
// yt-dlp output is ignored.
func parseProgressLine(line string) (progress.Event, bool) {
	_, rest, ok := strings.Cut(line, progressPrefix)
	if !ok {
		return progress.Event{}, false
	}
	fields := strings.Split(rest, "|")
	if len(fields) != 7 || fields[0] != string(progress.StatusDownloading) {
		return progress.Event{}, false
	}

	ev := progress.Event{
		Status:     progress.StatusDownloading,
		Downloaded: parseBytes(fields[1]),
		Total:      parseBytes(fields[2]),
		Speed:      cleanField(fields[5]),
		ETA:        cleanField(fields[6]),
	}
	if ev.Total == 0 {
		ev.Total = parseBytes(fields[3])
	}
	if pct := cleanField(fields[4]); pct != "" {
		ev.Percent = progress.TextPercent(pct)
	}
	return ev, true
}

// parseBytes accepts the integers and floats yt-dlp prints, "NA" is zero.
func parseBytes(s string) int64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v)
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func findVideo(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "video.*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			return m, nil
		}
	}
	return "", fmt.Errorf("downloaded file not found in %s", dir)
}
