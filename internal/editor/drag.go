package editor

import (
	"math"

	"github.com/snipper/snipper/internal/timeline"
)

// BeginDrag starts dragging the clip with the given id. Unknown ids and
// DragNone are ignored. Hover state is dropped while dragging.
func (e *Editor) BeginDrag(id string, mode DragMode) bool {
	if mode == DragNone {
		return false
	}
	if _, ok := e.find(id); !ok {
		return false
	}
	e.drag = &DragState{SegmentID: id, Mode: mode}
	e.hovering = false
	return true
}

func (e *Editor) Dragging() (DragState, bool) {
	if e.drag == nil {
		return DragState{}, false
	}
	return *e.drag, true
}

// OnPointerMove converts a pointer position on the track to time and applies
// it to the active drag.
func (e *Editor) OnPointerMove(p timeline.Projector, px float64) bool {
	return e.DragTo(p.PixelsToTime(px))
}

// DragTo applies pointer time t to the active drag. The clip is re-read on
// every call so concurrent edits are never clobbered by a stale copy. It
// reports whether the clip changed.
func (e *Editor) DragTo(t float64) bool {
	if e.drag == nil || e.duration < MinDuration || math.IsNaN(t) {
		return false
	}
	i, ok := e.find(e.drag.SegmentID)
	if !ok {
		e.drag = nil
		return false
	}

	seg := e.segments[i]
	next := seg

	switch e.drag.Mode {
	case DragMove:
		length := seg.End - seg.Start
		next.Start = clamp(t, 0, math.Max(0, e.duration-length))
		next.End = next.Start + length
	case DragResizeStart:
		next.Start = clamp(t, 0, seg.End-MinDuration)
	case DragResizeEnd:
		next.End = clamp(t, seg.Start+MinDuration, e.duration)
	}

	if next == seg {
		return false
	}
	e.segments[i] = next
	e.changed()
	return true
}

// EndDrag returns to idle wherever the pointer is released.
func (e *Editor) EndDrag() {
	e.drag = nil
}

// Hover records the time under the pointer. It has no effect while dragging.
func (e *Editor) Hover(p timeline.Projector, px float64) {
	if e.drag != nil {
		return
	}
	e.hover = p.PixelsToTime(px)
	e.hovering = true
}

func (e *Editor) ClearHover() {
	e.hovering = false
}

func (e *Editor) HoverTime() (float64, bool) {
	if e.drag != nil || !e.hovering {
		return 0, false
	}
	return e.hover, true
}

// HitTest finds the clip under px and the drag mode a press there begins.
// Presses within handle pixels of a clip edge resize it; the rest of the clip
// body moves it. Later clips win where clips overlap, matching draw order.
func (e *Editor) HitTest(p timeline.Projector, px, handle float64) (string, DragMode, bool) {
	for i := len(e.segments) - 1; i >= 0; i-- {
		seg := e.segments[i]
		left := p.TimeToPixels(seg.Start)
		right := p.TimeToPixels(seg.End)
		if px < left-handle || px > right+handle {
			continue
		}

		switch {
		case math.Abs(px-left) <= handle && math.Abs(px-left) <= math.Abs(px-right):
			return seg.ID, DragResizeStart, true
		case math.Abs(px-right) <= handle:
			return seg.ID, DragResizeEnd, true
		case px >= left && px <= right:
			return seg.ID, DragMove, true
		}
	}
	return "", DragNone, false
}
