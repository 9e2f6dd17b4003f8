package project

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultName = "Untitled Project"

	// MinSegmentDuration is the shortest clip, in seconds, the editor allows.
	MinSegmentDuration = 0.5
)

var ErrNotFound = errors.New("project not found")

type Segment struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Project is one source video and the clips cut from it. VideoPath and
// Duration stay empty until a download completes.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	VideoPath string    `json:"video_path,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Segments  []Segment `json:"segments"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) HasVideo() bool {
	return p.VideoPath != ""
}

// HasDefaultName reports whether the name may be replaced by the video title.
func (p *Project) HasDefaultName() bool {
	return p.Name == "" || p.Name == DefaultName
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	Name      *string    `json:"name,omitempty"`
	URL       *string    `json:"url,omitempty"`
	Title     *string    `json:"title,omitempty"`
	VideoPath *string    `json:"video_path,omitempty"`
	Duration  *float64   `json:"duration,omitempty"`
	Segments  *[]Segment `json:"segments,omitempty"`
}

func (p Patch) Apply(dst *Project) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.URL != nil {
		dst.URL = *p.URL
	}
	if p.Title != nil {
		dst.Title = *p.Title
	}
	if p.VideoPath != nil {
		dst.VideoPath = *p.VideoPath
	}
	if p.Duration != nil {
		dst.Duration = *p.Duration
	}
	if p.Segments != nil {
		dst.Segments = append([]Segment(nil), (*p.Segments)...)
	}
}

func NewID() string {
	return uuid.NewString()
}

// CopySegments returns an independent copy of segs.
func CopySegments(segs []Segment) []Segment {
	if segs == nil {
		return nil
	}
	out := make([]Segment, len(segs))
	copy(out, segs)
	return out
}
