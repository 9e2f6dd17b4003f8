package download

import (
	"context"
	"sync"
	"time"

	"github.com/snipper/snipper/internal/progress"
)

// MemoryBroker is a single-process Broker used when no redis server is
// configured.
type MemoryBroker struct {
	mu         sync.Mutex
	locks      map[string]time.Time // project id -> lock expiry
	heartbeats map[string]time.Time
	subs       map[string]map[*memorySubscription]struct{}
	now        func() time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		locks:      make(map[string]time.Time),
		heartbeats: make(map[string]time.Time),
		subs:       make(map[string]map[*memorySubscription]struct{}),
		now:        time.Now,
	}
}

func (b *MemoryBroker) Acquire(ctx context.Context, projectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	status := b.statusLocked(projectID, now)
	if status.Active && !status.Stale(now) {
		return ErrInProgress
	}

	b.locks[projectID] = now.Add(LockTTL)
	b.heartbeats[projectID] = now
	return nil
}

func (b *MemoryBroker) Heartbeat(ctx context.Context, projectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heartbeats[projectID] = b.now()
	return nil
}

func (b *MemoryBroker) Release(ctx context.Context, projectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.locks, projectID)
	delete(b.heartbeats, projectID)
	return nil
}

func (b *MemoryBroker) Status(ctx context.Context, projectID string) (LockStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked(projectID, b.now()), nil
}

func (b *MemoryBroker) statusLocked(projectID string, now time.Time) LockStatus {
	expiry, ok := b.locks[projectID]
	if !ok || !now.Before(expiry) {
		return LockStatus{}
	}
	return LockStatus{Active: true, HeartbeatAt: b.heartbeats[projectID]}
}

func (b *MemoryBroker) Publish(ctx context.Context, projectID string, ev progress.Event) error {
	b.mu.Lock()
	subs := make([]*memorySubscription, 0, len(b.subs[projectID]))
	for s := range b.subs[projectID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.deliver(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, projectID string) (Subscription, error) {
	s := &memorySubscription{
		events: make(chan progress.Event, 64),
		done:   make(chan struct{}),
	}
	s.unsubscribe = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[projectID], s)
		if len(b.subs[projectID]) == 0 {
			delete(b.subs, projectID)
		}
	}

	b.mu.Lock()
	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[*memorySubscription]struct{})
	}
	b.subs[projectID][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

func (b *MemoryBroker) Close() error { return nil }

type memorySubscription struct {
	events      chan progress.Event
	done        chan struct{}
	once        sync.Once
	unsubscribe func()

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(ctx context.Context, ev progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.events <- ev:
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *memorySubscription) Events() <-chan progress.Event { return s.events }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.unsubscribe()
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return nil
}
