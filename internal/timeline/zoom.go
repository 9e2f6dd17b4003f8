package timeline

import "math"

const (
	wheelZoomOut = 0.9
	wheelZoomIn  = 1.1
)

// Viewport is the zoom level and scroll offset of the track. It is derived
// state and never persisted.
type Viewport struct {
	Zoom   float64
	Offset float64
}

// DefaultViewport shows the whole video.
func DefaultViewport() Viewport {
	return Viewport{Zoom: MinZoom}
}

// ApplyWheel zooms around the pointer. A positive deltaY zooms out.
//
// When the resulting offset has to be clamped to the video edges the
// instant under the pointer moves; the viewport never scrolls past the
// start or end of the video.
func ApplyWheel(vp Viewport, pointerX, deltaY, width, duration float64) Viewport {
	factor := wheelZoomIn
	if deltaY > 0 {
		factor = wheelZoomOut
	}
	return ZoomAt(vp, pointerX, factor, width, duration)
}

// ZoomAt multiplies the zoom by factor, keeping the time under pointerX fixed
// where the video bounds allow it.
func ZoomAt(vp Viewport, pointerX, factor, width, duration float64) Viewport {
	if width <= 0 || duration <= 0 {
		return vp
	}

	pinned := NewProjector(vp, width, duration).PixelsToTime(pointerX)

	zoom := clamp(vp.Zoom*factor, MinZoom, MaxZoom)
	visible := duration / zoom
	ratio := pointerX / width

	offset := clamp(pinned-visible*ratio, 0, math.Max(0, duration-visible))
	return Viewport{Zoom: zoom, Offset: offset}
}

// Pan scrolls the viewport by delta seconds without changing zoom.
func Pan(vp Viewport, delta, duration float64) Viewport {
	if duration <= 0 {
		return vp
	}
	zoom := clamp(vp.Zoom, MinZoom, MaxZoom)
	visible := duration / zoom
	start := NewProjector(vp, 1, duration).VisibleStart()
	return Viewport{Zoom: zoom, Offset: clamp(start+delta, 0, math.Max(0, duration-visible))}
}

// Follow scrolls the viewport the minimum amount needed to keep t visible.
func Follow(vp Viewport, t, duration float64) Viewport {
	p := NewProjector(vp, 1, duration)
	start, end := p.VisibleStart(), p.VisibleEnd()
	switch {
	case t < start:
		return Pan(vp, t-start, duration)
	case t > end:
		return Pan(vp, t-end, duration)
	}
	return vp
}
