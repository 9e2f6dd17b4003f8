// Package download runs yt-dlp downloads in the background and fans their
// progress out to server-sent event subscribers. A per-project lock with a
// heartbeat keeps a second download of the same project from starting.
package download

import (
	"context"
	"errors"
	"time"

	"github.com/snipper/snipper/internal/progress"
)

const (
	// LockTTL bounds how long a lock survives a crashed worker.
	LockTTL = time.Hour

	// StaleAfter is how old a heartbeat may get before its lock is ignored.
	StaleAfter = 60 * time.Second

	HeartbeatInterval = time.Second
)

var (
	ErrInProgress = errors.New("download already in progress")
	ErrNoURL      = errors.New("project has no video url")
)

// LockStatus is the state of a project's download lock.
type LockStatus struct {
	Active      bool
	HeartbeatAt time.Time
}

// Stale reports whether an active lock has lost its worker: the heartbeat
// is missing or older than StaleAfter.
func (s LockStatus) Stale(now time.Time) bool {
	if !s.Active {
		return false
	}
	return s.HeartbeatAt.IsZero() || now.Sub(s.HeartbeatAt) > StaleAfter
}

// Broker holds download locks and carries progress events between the
// worker and subscribers.
type Broker interface {
	// Acquire takes the project's lock, clearing a stale one first. It
	// returns ErrInProgress when a live download holds the lock.
	Acquire(ctx context.Context, projectID string) error
	Heartbeat(ctx context.Context, projectID string) error
	Release(ctx context.Context, projectID string) error
	Status(ctx context.Context, projectID string) (LockStatus, error)
	Publish(ctx context.Context, projectID string, ev progress.Event) error
	Subscribe(ctx context.Context, projectID string) (Subscription, error)
	Close() error
}

// Subscription delivers published events in order until closed.
type Subscription interface {
	Events() <-chan progress.Event
	Close() error
}

func activeKey(projectID string) string    { return "download:active:" + projectID }
func heartbeatKey(projectID string) string { return "download:heartbeat:" + projectID }
func channelKey(projectID string) string   { return "download:progress:" + projectID }
