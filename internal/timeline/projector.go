// Package timeline maps video time onto a zoomable horizontal track.
package timeline

import "math"

const (
	MinZoom = 1.0
	MaxZoom = 100.0
)

// Projector converts between seconds and track pixels for one viewport.
// The zero value projects everything to 0.
type Projector struct {
	Zoom     float64
	Offset   float64
	Width    float64
	Duration float64
}

// NewProjector builds a projector for the given viewport and track geometry.
func NewProjector(vp Viewport, width, duration float64) Projector {
	return Projector{Zoom: vp.Zoom, Offset: vp.Offset, Width: width, Duration: duration}
}

func (p Projector) zoom() float64 {
	if p.Zoom < MinZoom {
		return MinZoom
	}
	return p.Zoom
}

func (p Projector) degenerate() bool {
	return p.Width <= 0 || p.Duration <= 0
}

// VisibleDuration is the span of seconds currently shown on the track.
func (p Projector) VisibleDuration() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return p.Duration / p.zoom()
}

// VisibleStart is the offset clamped into [0, Duration-VisibleDuration].
func (p Projector) VisibleStart() float64 {
	return clamp(p.Offset, 0, math.Max(0, p.Duration-p.VisibleDuration()))
}

// VisibleEnd is the last second shown on the track.
func (p Projector) VisibleEnd() float64 {
	return p.VisibleStart() + p.VisibleDuration()
}

func (p Projector) PixelsToTime(px float64) float64 {
	if p.degenerate() {
		return 0
	}
	return p.VisibleStart() + (px/p.Width)*p.VisibleDuration()
}

func (p Projector) TimeToPixels(t float64) float64 {
	if p.degenerate() {
		return 0
	}
	return ((t - p.VisibleStart()) / p.VisibleDuration()) * p.Width
}

// SecondsPerPixel is how much time one pixel of track covers.
func (p Projector) SecondsPerPixel() float64 {
	if p.degenerate() {
		return 0
	}
	return p.VisibleDuration() / p.Width
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
