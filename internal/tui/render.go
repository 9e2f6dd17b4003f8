package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/session"
	"github.com/snipper/snipper/internal/timeline"
)

type cellKind int

const (
	cellEmpty cellKind = iota
	cellSegment
	cellSelected
	cellPlayhead
)

// trackCells lays out one character per track column. Later clips cover
// earlier ones, matching hit testing.
func trackCells(snap session.Snapshot, width int) []cellKind {
	cells := make([]cellKind, max(width, 0))
	p := snap.Projector
	if width <= 0 || p.Duration <= 0 {
		return cells
	}

	for c := range cells {
		t := p.PixelsToTime(float64(c) + 0.5)
		for _, seg := range snap.Segments {
			if t < seg.Start || t >= seg.End {
				continue
			}
			if seg.ID == snap.Selected {
				cells[c] = cellSelected
			} else {
				cells[c] = cellSegment
			}
		}
	}

	if x := playheadColumn(p, snap.CurrentTime, width); x >= 0 {
		cells[x] = cellPlayhead
	}
	return cells
}

// playheadColumn is the column of t, or -1 when t is scrolled out of view.
func playheadColumn(p timeline.Projector, t float64, width int) int {
	if t < p.VisibleStart() || t > p.VisibleEnd() {
		return -1
	}
	x := int(math.Floor(p.TimeToPixels(t)))
	return min(max(x, 0), width-1)
}

func renderTrack(snap session.Snapshot, width int) string {
	var b strings.Builder
	for _, c := range trackCells(snap, width) {
		switch c {
		case cellSegment:
			b.WriteString(segmentStyle.Render("█"))
		case cellSelected:
			b.WriteString(selectedStyle.Render("█"))
		case cellPlayhead:
			b.WriteString(playheadStyle.Render("┃"))
		default:
			b.WriteString(InfoStyle.Render("─"))
		}
	}
	return b.String()
}

// markerLine places time labels at their columns, dropping any that would
// overlap the previous one.
func markerLine(markers []timeline.Marker, width int) string {
	line := []rune(strings.Repeat(" ", max(width, 0)))
	next := 0
	for _, m := range markers {
		x := int(math.Round(m.X))
		label := []rune("┆" + m.Label)
		if x < next || x+len(label) > width {
			continue
		}
		copy(line[x:], label)
		next = x + len(label) + 1
	}
	return string(line)
}

func statusLine(snap session.Snapshot) string {
	parts := []string{
		fmt.Sprintf("%s / %s", timeline.FormatTime(snap.CurrentTime), timeline.FormatTime(snap.Duration)),
		fmt.Sprintf("zoom %.1fx", snap.Viewport.Zoom),
		fmt.Sprintf("%d clips", len(snap.Segments)),
	}
	if snap.Playback.Total > 0 {
		parts = append(parts, fmt.Sprintf("playing %d/%d", snap.Playback.Index+1, snap.Playback.Total))
	} else if snap.Playing {
		parts = append(parts, "playing")
	}
	if snap.Hover != nil {
		parts = append(parts, "@ "+timeline.FormatTime(*snap.Hover))
	}
	return strings.Join(parts, "  ")
}

func segmentList(snap session.Snapshot) string {
	var b strings.Builder
	for i, seg := range snap.Segments {
		line := fmt.Sprintf("%2d. %s → %s  (%.1fs)", i+1, timeline.FormatTime(seg.Start), timeline.FormatTime(seg.End), seg.Duration())
		if seg.ID == snap.Selected {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func downloadText(d progress.Snapshot) string {
	if d.State == nil {
		return ""
	}
	return progress.Describe(*d.State)
}
