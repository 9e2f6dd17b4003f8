// Package export renders a project's segments into a single cut, either an
// MP4 concatenated by ffmpeg or a CMX3600 edit decision list.
package export

import (
	"errors"
	"fmt"
)

type Format string

const (
	FormatMP4 Format = "mp4"
	FormatEDL Format = "edl"
)

var (
	ErrNoSegments   = errors.New("no segments to export")
	ErrVideoMissing = errors.New("video file not found")
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMP4:
		return FormatMP4, nil
	case FormatEDL:
		return FormatEDL, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type of the rendered file.
func (f Format) ContentType() string {
	if f == FormatEDL {
		return "text/plain; charset=utf-8"
	}
	return "video/mp4"
}

type Result struct {
	Format       Format `json:"format"`
	SegmentCount int    `json:"segment_count"`
	Bytes        int64  `json:"bytes"`
	ObjectKey    string `json:"object_key,omitempty"`
}
