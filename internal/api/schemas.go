package api

import (
	"time"

	"github.com/snipper/snipper/internal/toolchain"
)

type HealthResponse struct {
	Status          string         `json:"status"`
	Version         string         `json:"version"`
	UptimeS         int64          `json:"uptime_s"`
	Projects        int            `json:"projects"`
	ActiveDownloads int            `json:"active_downloads"`
	Tools           *ToolsResponse `json:"tools,omitempty"`
}

type ToolsResponse struct {
	YtDlp       toolchain.ToolInfo `json:"yt_dlp"`
	FFmpeg      toolchain.ToolInfo `json:"ffmpeg"`
	CanDownload bool               `json:"can_download"`
	CanExport   bool               `json:"can_export"`
	LastProbeAt string             `json:"last_probe_at"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type DownloadResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func CapabilitiesToResponse(c *toolchain.Capabilities) *ToolsResponse {
	if c == nil {
		return nil
	}
	return &ToolsResponse{
		YtDlp:       c.YtDlp,
		FFmpeg:      c.FFmpeg,
		CanDownload: c.CanDownload(),
		CanExport:   c.CanExport(),
		LastProbeAt: c.ProbedAt.Format(time.RFC3339),
	}
}
