package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snipper/snipper/internal/project"
)

const saveTimeout = 10 * time.Second

// persister writes the latest project snapshot in the background. Snapshots
// submitted while a save is running collapse into one follow-up save.
type persister struct {
	save   func(ctx context.Context, p *project.Project) error
	logger *slog.Logger

	mu      sync.Mutex
	pending *project.Project

	// serialises saves between the loop and Flush
	saveMu sync.Mutex

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newPersister(save func(ctx context.Context, p *project.Project) error, logger *slog.Logger) *persister {
	p := &persister{
		save:   save,
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

// Submit queues snap, replacing anything not yet written. It never blocks.
func (p *persister) Submit(snap *project.Project) {
	p.mu.Lock()
	p.pending = snap
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush writes any pending snapshot before returning.
func (p *persister) Flush(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	return p.writePending(ctx)
}

// Close writes what is pending and stops the loop.
func (p *persister) Close() {
	p.once.Do(func() { close(p.quit) })
	<-p.done
}

func (p *persister) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.flushBackground()
		case <-p.quit:
			p.flushBackground()
			return
		}
	}
}

func (p *persister) flushBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	if err := p.writePending(ctx); err != nil {
		p.logger.Warn("failed to save project", "error", err)
	}
}

func (p *persister) writePending(ctx context.Context) error {
	p.mu.Lock()
	snap := p.pending
	p.pending = nil
	p.mu.Unlock()

	if snap == nil {
		return nil
	}
	if err := p.save(ctx, snap); err != nil {
		// keep it for the next attempt unless something newer arrived
		p.mu.Lock()
		if p.pending == nil {
			p.pending = snap
		}
		p.mu.Unlock()
		return err
	}
	return nil
}
