package editor

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/timeline"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("seg-%d", n)
	}
}

func newTestEditor(segs []project.Segment, duration float64) (*Editor, *[][]project.Segment) {
	var calls [][]project.Segment
	e := New(segs, duration,
		WithIDGenerator(sequentialIDs()),
		WithNotifier(func(s []project.Segment) { calls = append(calls, s) }),
	)
	return e, &calls
}

func TestCreateSegmentAt(t *testing.T) {
	tests := []struct {
		name      string
		at        float64
		wantStart float64
		wantEnd   float64
	}{
		{"full length", 2, 2, 7},
		{"cut by video end", 8, 8, 10},
		{"pulled back to minimum length", 9.75, 9.5, 10},
		{"beyond end", 12, 9.5, 10},
		{"negative", -4, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, calls := newTestEditor(nil, 10)

			seg, err := e.CreateSegmentAt(tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, seg.Start)
			assert.Equal(t, tt.wantEnd, seg.End)
			assert.Equal(t, "seg-1", seg.ID)
			require.Len(t, *calls, 1)
			assert.Equal(t, []project.Segment{seg}, (*calls)[0])
		})
	}
}

func TestCreateSegmentAt_UnknownDuration(t *testing.T) {
	e, calls := newTestEditor(nil, 0)

	_, err := e.CreateSegmentAt(3)
	assert.ErrorIs(t, err, ErrDurationUnknown)
	assert.Empty(t, *calls)
	assert.Equal(t, 0, e.Len())
}

func TestCreateSegmentAt_KeepsInsertionOrder(t *testing.T) {
	e, _ := newTestEditor(nil, 60)

	for _, at := range []float64{30, 10, 20} {
		_, err := e.CreateSegmentAt(at)
		require.NoError(t, err)
	}

	segs := e.Segments()
	assert.Equal(t, []float64{30, 10, 20}, []float64{segs[0].Start, segs[1].Start, segs[2].Start})

	sorted := e.Sorted()
	assert.Equal(t, []float64{10, 20, 30}, []float64{sorted[0].Start, sorted[1].Start, sorted[2].Start})
}

func TestDeleteSegment_ClearsSelection(t *testing.T) {
	e, calls := newTestEditor([]project.Segment{{ID: "a", Start: 0, End: 2}, {ID: "b", Start: 4, End: 6}}, 10)

	require.True(t, e.Select("a"))
	assert.True(t, e.DeleteSegment("b"))
	_, ok := e.Selected()
	assert.True(t, ok, "deleting another clip keeps the selection")

	assert.True(t, e.DeleteSegment("a"))
	_, ok = e.Selected()
	assert.False(t, ok)

	assert.False(t, e.DeleteSegment("a"))
	assert.Len(t, *calls, 2)
}

func TestDrag_Move(t *testing.T) {
	e, calls := newTestEditor([]project.Segment{{ID: "a", Start: 2, End: 4}}, 10)
	require.True(t, e.BeginDrag("a", DragMove))

	assert.True(t, e.DragTo(9))
	seg, _ := e.Segment("a")
	assert.Equal(t, project.Segment{ID: "a", Start: 8, End: 10}, seg)

	assert.True(t, e.DragTo(-3))
	seg, _ = e.Segment("a")
	assert.Equal(t, project.Segment{ID: "a", Start: 0, End: 2}, seg)

	assert.False(t, e.DragTo(-1), "unchanged position is not a mutation")
	assert.Len(t, *calls, 2)
}

func TestDrag_ResizeBounds(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 2, End: 4}}, 10)
		require.True(t, e.BeginDrag("a", DragResizeStart))

		e.DragTo(3.8)
		seg, _ := e.Segment("a")
		assert.Equal(t, 3.5, seg.Start)
		assert.Equal(t, 4.0, seg.End)

		e.DragTo(-1)
		seg, _ = e.Segment("a")
		assert.Equal(t, 0.0, seg.Start)
	})

	t.Run("end", func(t *testing.T) {
		e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 2, End: 4}}, 10)
		require.True(t, e.BeginDrag("a", DragResizeEnd))

		e.DragTo(2.1)
		seg, _ := e.Segment("a")
		assert.Equal(t, 2.5, seg.End)

		e.DragTo(20)
		seg, _ = e.Segment("a")
		assert.Equal(t, 10.0, seg.End)
		assert.Equal(t, 2.0, seg.Start)
	})
}

func TestDrag_RandomSequencesKeepBounds(t *testing.T) {
	const duration = 30.0
	rng := rand.New(rand.NewSource(7))
	modes := []DragMode{DragMove, DragResizeStart, DragResizeEnd}

	e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 10, End: 15}}, duration)

	for i := 0; i < 2000; i++ {
		if i%25 == 0 {
			e.EndDrag()
			require.True(t, e.BeginDrag("a", modes[rng.Intn(len(modes))]))
		}
		e.DragTo(rng.Float64()*50 - 10)

		seg, ok := e.Segment("a")
		require.True(t, ok)
		require.GreaterOrEqual(t, seg.Start, 0.0)
		require.LessOrEqual(t, seg.End, duration)
		require.GreaterOrEqual(t, seg.End-seg.Start, MinDuration-1e-9)
	}
}

func TestDrag_EndDragAnywhere(t *testing.T) {
	e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 2, End: 4}}, 10)

	assert.False(t, e.BeginDrag("missing", DragMove))
	assert.False(t, e.BeginDrag("a", DragNone))

	require.True(t, e.BeginDrag("a", DragMove))
	state, ok := e.Dragging()
	require.True(t, ok)
	assert.Equal(t, DragState{SegmentID: "a", Mode: DragMove}, state)

	e.EndDrag()
	_, ok = e.Dragging()
	assert.False(t, ok)
	assert.False(t, e.DragTo(6), "moves after release are ignored")
}

func TestDrag_ReadsLatestSegment(t *testing.T) {
	e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 2, End: 4}}, 10)
	require.True(t, e.BeginDrag("a", DragResizeEnd))

	e.Replace([]project.Segment{{ID: "a", Start: 5, End: 8}})
	e.DragTo(5.2)

	seg, _ := e.Segment("a")
	assert.Equal(t, 5.5, seg.End, "clamped against the replaced start")
}

func TestHover_ExclusiveWithDrag(t *testing.T) {
	e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 2, End: 4}}, 10)
	p := timeline.Projector{Zoom: 1, Width: 100, Duration: 10}

	e.Hover(p, 50)
	hover, ok := e.HoverTime()
	require.True(t, ok)
	assert.Equal(t, 5.0, hover)

	require.True(t, e.BeginDrag("a", DragMove))
	_, ok = e.HoverTime()
	assert.False(t, ok)

	e.Hover(p, 20)
	_, ok = e.HoverTime()
	assert.False(t, ok)

	e.EndDrag()
	e.Hover(p, 20)
	hover, ok = e.HoverTime()
	require.True(t, ok)
	assert.Equal(t, 2.0, hover)

	e.ClearHover()
	_, ok = e.HoverTime()
	assert.False(t, ok)
}

func TestOnPointerMove_UsesProjector(t *testing.T) {
	e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 10, End: 20}}, 100)
	p := timeline.Projector{Zoom: 4, Offset: 50, Width: 1000, Duration: 100}

	require.True(t, e.BeginDrag("a", DragMove))
	e.OnPointerMove(p, 400)

	seg, _ := e.Segment("a")
	assert.Equal(t, 60.0, seg.Start)
	assert.Equal(t, 70.0, seg.End)
}

func TestHitTest(t *testing.T) {
	e, _ := newTestEditor([]project.Segment{{ID: "a", Start: 10, End: 20}}, 100)
	p := timeline.Projector{Zoom: 1, Width: 1000, Duration: 100}

	tests := []struct {
		px       float64
		wantMode DragMode
		wantHit  bool
	}{
		{101, DragResizeStart, true},
		{97, DragResizeStart, true},
		{198, DragResizeEnd, true},
		{150, DragMove, true},
		{300, DragNone, false},
	}

	for _, tt := range tests {
		id, mode, ok := e.HitTest(p, tt.px, 4)
		assert.Equal(t, tt.wantHit, ok, "px %v", tt.px)
		assert.Equal(t, tt.wantMode, mode, "px %v", tt.px)
		if ok {
			assert.Equal(t, "a", id)
		}
	}
}

func TestSelectNext_Wraps(t *testing.T) {
	e, _ := newTestEditor([]project.Segment{
		{ID: "late", Start: 20, End: 25},
		{ID: "early", Start: 0, End: 3},
	}, 30)

	seg, ok := e.SelectNext()
	require.True(t, ok)
	assert.Equal(t, "early", seg.ID)

	seg, _ = e.SelectNext()
	assert.Equal(t, "late", seg.ID)

	seg, _ = e.SelectNext()
	assert.Equal(t, "early", seg.ID)
}
