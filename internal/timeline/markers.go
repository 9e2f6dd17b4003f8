package timeline

import (
	"fmt"
	"math"
)

type Marker struct {
	Time  float64
	X     float64
	Label string
}

// MarkerInterval picks the spacing in seconds of time labels for a visible span.
func MarkerInterval(visible float64) float64 {
	switch {
	case visible <= 60:
		return 5
	case visible <= 300:
		return 30
	case visible <= 1800:
		return 60
	case visible <= 3600:
		return 300
	default:
		return 600
	}
}

// Markers lists the labelled ticks that fall inside the visible range.
func Markers(p Projector) []Marker {
	if p.degenerate() {
		return nil
	}

	interval := MarkerInterval(p.VisibleDuration())
	end := p.VisibleEnd()

	var markers []Marker
	for t := math.Floor(p.VisibleStart()/interval) * interval; t <= end; t += interval {
		if t < 0 || t > p.Duration {
			continue
		}
		markers = append(markers, Marker{Time: t, X: p.TimeToPixels(t), Label: FormatTime(t)})
	}
	return markers
}

// FormatTime renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	hrs := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	if hrs > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hrs, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
