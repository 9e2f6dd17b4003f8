package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/snipper/snipper/internal/progress"
)

const (
	msgNoDownload = "No download in progress"
	msgStale      = "Stale download detected"
)

var errSubscriptionClosed = errors.New("progress subscription closed")

// EventWriter is an SSE sink; Flush pushes buffered bytes to the client.
type EventWriter interface {
	io.Writer
	Flush()
}

// Stream writes the project's progress to w as server-sent events. It
// returns after a terminal event, when the download turns out to be stale
// or gone, or when ctx is done.
func (m *Manager) Stream(ctx context.Context, projectID string, w EventWriter) error {
	// subscribe before reading the lock so no event falls in between
	sub, err := m.broker.Subscribe(ctx, projectID)
	if err != nil {
		return err
	}
	defer sub.Close()

	if done, err := m.checkLock(ctx, projectID, w); done || err != nil {
		return err
	}

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return err
	}
	w.Flush()

	ticker := time.NewTicker(m.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sub.Events():
			if !ok {
				return errSubscriptionClosed
			}
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			if ev.Status.Terminal() {
				return nil
			}

		case <-ticker.C:
			if done, err := m.checkLock(ctx, projectID, w); done || err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, ": keepalive %d\n\n", m.now().Unix()); err != nil {
				return err
			}
			w.Flush()
		}
	}
}

// checkLock ends the stream when no live download holds the lock. A
// project whose video already exists gets a complete event so a late
// subscriber still learns the result.
func (m *Manager) checkLock(ctx context.Context, projectID string, w EventWriter) (bool, error) {
	status, err := m.broker.Status(ctx, projectID)
	if err != nil {
		return true, err
	}

	switch {
	case status.Stale(m.now()):
		m.logger.Warn("stale download detected", "project_id", projectID)
		return true, writeEvent(w, progress.Event{Status: progress.StatusError, Error: msgStale})

	case !status.Active:
		p, err := m.projects.Get(ctx, projectID)
		if err == nil && p.HasVideo() {
			return true, writeEvent(w, progress.Event{
				Status:   progress.StatusComplete,
				Duration: p.Duration,
				Title:    p.Title,
			})
		}
		return true, writeEvent(w, progress.Event{Status: progress.StatusError, Error: msgNoDownload})
	}
	return false, nil
}

func writeEvent(w EventWriter, ev progress.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
