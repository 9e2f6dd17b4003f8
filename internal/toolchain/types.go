// Package toolchain runs the external media tools (yt-dlp and ffmpeg) as
// subprocesses and probes which of them are installed.
package toolchain

import "time"

// ToolInfo describes one external binary as found on this machine.
type ToolInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is the result of a doctor probe.
type Capabilities struct {
	YtDlp    ToolInfo  `json:"yt_dlp"`
	FFmpeg   ToolInfo  `json:"ffmpeg"`
	ProbedAt time.Time `json:"probed_at"`
}

func (c Capabilities) CanDownload() bool { return c.YtDlp.Available }

func (c Capabilities) CanExport() bool { return c.FFmpeg.Available }

// RunResult is the structured outcome of executing a subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Err converts a failed result into an error carrying the stderr tail.
func (r RunResult) Err(tool string) error {
	if r.IsSuccess() {
		return nil
	}
	return &ExitError{Tool: tool, Code: r.ExitCode, Stderr: r.StderrTail}
}

type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return e.Tool + " failed"
	}
	return e.Stderr
}
