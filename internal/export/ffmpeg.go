package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/toolchain"
)

// ConcatArgs builds the ffmpeg arguments that cut each segment out of video
// as its own input and concatenates them, in the order given, into output.
func ConcatArgs(video string, segs []project.Segment, output string) []string {
	args := []string{"-y"}
	for _, s := range segs {
		args = append(args,
			"-ss", formatSeconds(s.Start),
			"-t", formatSeconds(s.End-s.Start),
			"-i", video,
		)
	}

	var filter strings.Builder
	for i := range segs {
		fmt.Fprintf(&filter, "[%d:v][%d:a]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[outv][outa]", len(segs))

	return append(args,
		"-filter_complex", filter.String(),
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-c:a", "aac",
		output,
	)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Renderer runs ffmpeg to produce MP4 cuts.
type Renderer struct {
	bin    string
	runner toolchain.Runner
	logger *slog.Logger
}

func NewRenderer(bin string, runner toolchain.Runner, logger *slog.Logger) *Renderer {
	return &Renderer{bin: bin, runner: runner, logger: logger}
}

func (r *Renderer) Render(ctx context.Context, video string, segs []project.Segment, output string) error {
	if len(segs) == 0 {
		return ErrNoSegments
	}

	r.logger.Info("rendering export", "segments", len(segs), "output", output)
	result := r.runner.Run(ctx, r.bin, ConcatArgs(video, segs, output), nil)
	if err := result.Err("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
