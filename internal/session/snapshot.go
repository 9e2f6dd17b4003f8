package session

import (
	"github.com/snipper/snipper/internal/editor"
	"github.com/snipper/snipper/internal/playback"
	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/timeline"
)

// Snapshot is a consistent copy of everything a host renders.
type Snapshot struct {
	ProjectID string
	Name      string
	URL       string
	HasVideo  bool

	// Segments are in insertion order.
	Segments []project.Segment
	Selected string
	Drag     *editor.DragState
	Hover    *float64

	Viewport  timeline.Viewport
	Projector timeline.Projector
	Markers   []timeline.Marker

	CurrentTime float64
	Duration    float64
	Playing     bool
	Playback    playback.Status

	Download progress.Snapshot
	Err      error
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.projectorLocked()
	snap := Snapshot{
		ProjectID:   s.project.ID,
		Name:        s.project.Name,
		URL:         s.project.URL,
		HasVideo:    s.project.HasVideo(),
		Segments:    s.editor.Segments(),
		Viewport:    s.viewport,
		Projector:   p,
		Markers:     timeline.Markers(p),
		CurrentTime: s.currentTime,
		Duration:    s.editor.Duration(),
		Playing:     s.playing,
		Playback:    s.sequencer.Status(),
		Download:    s.progress,
		Err:         s.lastErr,
	}
	if seg, ok := s.editor.Selected(); ok {
		snap.Selected = seg.ID
	}
	if d, ok := s.editor.Dragging(); ok {
		snap.Drag = &d
	}
	if t, ok := s.editor.HoverTime(); ok {
		snap.Hover = &t
	}
	return snap
}
