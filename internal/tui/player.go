package tui

import (
	"math"
	"sync"
	"time"
)

// VirtualPlayer stands in for a media element: it keeps a clock that runs
// while playing and stops at the end of the video.
type VirtualPlayer struct {
	mu       sync.Mutex
	position float64
	duration float64
	playing  bool
}

func (p *VirtualPlayer) SeekTo(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.clampLocked(t)
}

func (p *VirtualPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
}

func (p *VirtualPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *VirtualPlayer) SetDuration(d float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duration = math.Max(0, d)
	p.position = p.clampLocked(p.position)
}

func (p *VirtualPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *VirtualPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Advance moves the clock by dt while playing and returns the position.
// Reaching the end pauses.
func (p *VirtualPlayer) Advance(dt time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return p.position
	}
	p.position = p.clampLocked(p.position + dt.Seconds())
	if p.duration > 0 && p.position >= p.duration {
		p.playing = false
	}
	return p.position
}

func (p *VirtualPlayer) clampLocked(t float64) float64 {
	t = math.Max(0, t)
	if p.duration > 0 {
		t = math.Min(t, p.duration)
	}
	return t
}
