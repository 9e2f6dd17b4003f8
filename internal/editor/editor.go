// Package editor owns the clip collection of an open project and the pointer
// state machine that moves and resizes clips on the timeline.
//
// An Editor is not safe for concurrent use; the owning session serialises
// access.
package editor

import (
	"errors"
	"math"
	"sort"

	"github.com/snipper/snipper/internal/project"
)

const (
	// DefaultSegmentLength is the length, in seconds, of a freshly marked clip.
	DefaultSegmentLength = 5.0

	MinDuration = project.MinSegmentDuration
)

var ErrDurationUnknown = errors.New("video duration unknown")

type DragMode int

const (
	DragNone DragMode = iota
	DragMove
	DragResizeStart
	DragResizeEnd
)

func (m DragMode) String() string {
	switch m {
	case DragMove:
		return "move"
	case DragResizeStart:
		return "resize-start"
	case DragResizeEnd:
		return "resize-end"
	default:
		return "none"
	}
}

// DragState identifies the clip being dragged and how.
type DragState struct {
	SegmentID string
	Mode      DragMode
}

// Notifier receives a copy of the collection after every mutation.
type Notifier func([]project.Segment)

type Option func(*Editor)

func WithNotifier(fn Notifier) Option {
	return func(e *Editor) { e.notify = fn }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Editor) { e.newID = fn }
}

type Editor struct {
	segments []project.Segment
	duration float64
	selected string

	drag     *DragState
	hover    float64
	hovering bool

	notify Notifier
	newID  func() string
}

func New(segments []project.Segment, duration float64, opts ...Option) *Editor {
	e := &Editor{
		segments: project.CopySegments(segments),
		duration: duration,
		newID:    project.NewID,
	}
	if e.segments == nil {
		e.segments = []project.Segment{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Editor) Duration() float64 {
	return e.duration
}

// SetDuration records the video length once the player knows it.
func (e *Editor) SetDuration(d float64) {
	if d < 0 || math.IsNaN(d) {
		d = 0
	}
	e.duration = d
}

// Replace swaps in a collection loaded from the store without notifying.
func (e *Editor) Replace(segments []project.Segment) {
	e.segments = project.CopySegments(segments)
	if e.segments == nil {
		e.segments = []project.Segment{}
	}
	if _, ok := e.find(e.selected); !ok {
		e.selected = ""
	}
	if e.drag != nil {
		if _, ok := e.find(e.drag.SegmentID); !ok {
			e.drag = nil
		}
	}
}

// Segments returns the collection in insertion order.
func (e *Editor) Segments() []project.Segment {
	return project.CopySegments(e.segments)
}

// Sorted returns a copy ordered by start time. Ties keep insertion order.
func (e *Editor) Sorted() []project.Segment {
	return SortByStart(e.segments)
}

func (e *Editor) Len() int {
	return len(e.segments)
}

func (e *Editor) Segment(id string) (project.Segment, bool) {
	i, ok := e.find(id)
	if !ok {
		return project.Segment{}, false
	}
	return e.segments[i], true
}

// CreateSegmentAt appends a clip starting at t and lasting up to
// DefaultSegmentLength, cut short by the end of the video.
func (e *Editor) CreateSegmentAt(t float64) (project.Segment, error) {
	if e.duration < MinDuration {
		return project.Segment{}, ErrDurationUnknown
	}

	start := clamp(t, 0, e.duration)
	end := math.Min(start+DefaultSegmentLength, e.duration)
	if end-start < MinDuration {
		start = end - MinDuration
	}

	seg := project.Segment{ID: e.newID(), Start: start, End: end}
	e.segments = append(e.segments, seg)
	e.changed()
	return seg, nil
}

// DeleteSegment removes a clip. It reports whether anything was removed.
func (e *Editor) DeleteSegment(id string) bool {
	i, ok := e.find(id)
	if !ok {
		return false
	}

	e.segments = append(e.segments[:i], e.segments[i+1:]...)
	if e.selected == id {
		e.selected = ""
	}
	if e.drag != nil && e.drag.SegmentID == id {
		e.drag = nil
	}
	e.changed()
	return true
}

func (e *Editor) Select(id string) bool {
	if _, ok := e.find(id); !ok {
		return false
	}
	e.selected = id
	return true
}

func (e *Editor) ClearSelection() {
	e.selected = ""
}

func (e *Editor) Selected() (project.Segment, bool) {
	return e.Segment(e.selected)
}

// SelectNext moves the selection to the next clip in time order, wrapping
// around. With no selection the earliest clip is chosen.
func (e *Editor) SelectNext() (project.Segment, bool) {
	sorted := e.Sorted()
	if len(sorted) == 0 {
		return project.Segment{}, false
	}

	next := 0
	for i, seg := range sorted {
		if seg.ID == e.selected {
			next = (i + 1) % len(sorted)
			break
		}
	}
	e.selected = sorted[next].ID
	return sorted[next], true
}

func (e *Editor) changed() {
	if e.notify != nil {
		e.notify(project.CopySegments(e.segments))
	}
}

func (e *Editor) find(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for i := range e.segments {
		if e.segments[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// SortByStart returns a stably sorted copy of segs.
func SortByStart(segs []project.Segment) []project.Segment {
	out := project.CopySegments(segs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
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
