package playback

import (
	"math"
	"sort"
	"time"

	"github.com/snipper/snipper/internal/project"
)

const (
	// SeekTolerance is how far before a seek target a reported position may
	// land and still count as the seek having completed.
	SeekTolerance = 0.5

	// maxStaleUpdates bounds how many off-target time updates are discarded
	// while waiting for a seek before the seek is issued again.
	maxStaleUpdates = 8
)

// Player is the media element the sequencer drives.
type Player interface {
	SeekTo(seconds float64)
	Play()
	Pause()
}

// Scheduler runs fn once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (cancel func())

// AfterFunc schedules on the runtime timer.
func AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

type State int

const (
	StateIdle State = iota
	StatePlayingSingle
	StatePlayingAll
)

func (s State) String() string {
	switch s {
	case StatePlayingSingle:
		return "playing-single"
	case StatePlayingAll:
		return "playing-all"
	default:
		return "idle"
	}
}

// Status is a snapshot of the sequencer for rendering.
type Status struct {
	State   State
	Segment project.Segment
	Index   int
	Total   int
}

// Sequencer plays one clip, or every clip in time order, by watching the
// player's reported position. It is not safe for concurrent use; the
// scheduler passed to NewSequencer must deliver callbacks under the same
// lock that guards the other calls.
type Sequencer struct {
	player   Player
	schedule Scheduler

	state  State
	queue  []project.Segment
	active int

	awaitingSeek bool
	staleUpdates int

	cancelTimer func()
	generation  uint64
}

func NewSequencer(player Player, schedule Scheduler) *Sequencer {
	if schedule == nil {
		schedule = AfterFunc
	}
	return &Sequencer{player: player, schedule: schedule}
}

func (s *Sequencer) State() State {
	return s.state
}

func (s *Sequencer) Status() Status {
	if s.state == StateIdle {
		return Status{State: StateIdle}
	}
	return Status{
		State:   s.state,
		Segment: s.queue[s.active],
		Index:   s.active,
		Total:   len(s.queue),
	}
}

// PlaySingle plays seg once. Playback stops at the first reported position at
// or past its end, or when the clip's wall-clock length elapses, whichever
// comes first.
func (s *Sequencer) PlaySingle(seg project.Segment) {
	s.reset()
	s.state = StatePlayingSingle
	s.queue = []project.Segment{seg}
	s.active = 0
	s.seekActive()
	s.player.Play()

	gen := s.generation
	length := time.Duration(math.Max(0, seg.End-seg.Start) * float64(time.Second))
	s.cancelTimer = s.schedule(length, func() { s.backstop(gen) })
}

// PlayAll plays every clip ordered by start time. An empty list does nothing.
func (s *Sequencer) PlayAll(segs []project.Segment) {
	if len(segs) == 0 {
		return
	}
	s.reset()
	s.state = StatePlayingAll
	s.queue = sortByStart(segs)
	s.active = 0
	s.seekActive()
	s.player.Play()
}

// OnTimeUpdate feeds the player's current position.
func (s *Sequencer) OnTimeUpdate(t float64) {
	if s.state == StateIdle || math.IsNaN(t) {
		return
	}

	seg := s.queue[s.active]
	if s.awaitingSeek {
		if t < seg.Start-SeekTolerance || t >= seg.End {
			// an off-target position never finishes the pending clip
			s.staleUpdates++
			if s.staleUpdates > maxStaleUpdates {
				s.seekActive()
			}
			return
		}
		s.awaitingSeek = false
		s.staleUpdates = 0
	}

	if t < seg.End {
		return
	}

	if s.state == StatePlayingSingle {
		s.finishSingle()
		return
	}

	if s.active+1 < len(s.queue) {
		s.active++
		s.seekActive()
		return
	}

	s.player.Pause()
	s.reset()
}

// Stop cancels any pending timer and returns to idle without touching the
// player.
func (s *Sequencer) Stop() {
	s.reset()
}

func (s *Sequencer) backstop(gen uint64) {
	if gen != s.generation || s.state != StatePlayingSingle {
		return
	}
	s.cancelTimer = nil
	s.finishSingle()
}

func (s *Sequencer) finishSingle() {
	end := s.queue[s.active].End
	s.reset()
	s.player.SeekTo(end)
	s.player.Pause()
}

func (s *Sequencer) seekActive() {
	s.awaitingSeek = true
	s.staleUpdates = 0
	s.player.SeekTo(s.queue[s.active].Start)
}

func (s *Sequencer) reset() {
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	s.generation++
	s.state = StateIdle
	s.queue = nil
	s.active = 0
	s.awaitingSeek = false
	s.staleUpdates = 0
}

func sortByStart(segs []project.Segment) []project.Segment {
	out := project.CopySegments(segs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
