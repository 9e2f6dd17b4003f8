package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrConflict is returned by an Initiator when a download for the
	// project is already running. The tracker attaches to it instead.
	ErrConflict = errors.New("download already in progress")

	ErrStreamClosed = errors.New("progress stream closed")
	ErrClosed       = errors.New("tracker closed")
)

// TransportError wraps a feed failure. Temporary errors are tolerated while
// the feed reconnects.
type TransportError struct {
	Err       error
	Temporary bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("progress transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DownloadError carries the message of a terminal error event.
type DownloadError struct {
	Message string
}

func (e *DownloadError) Error() string {
	return "download failed: " + e.Message
}

type Initiator interface {
	StartDownload(ctx context.Context, projectID string) error
}

type Feed interface {
	Subscribe(ctx context.Context, projectID string) (Stream, error)
}

// Stream delivers events in order. Close must eventually close the Messages
// channel.
type Stream interface {
	Messages() <-chan Message
	Close() error
}

type Message struct {
	Event Event
	Err   error
}

// State is the progress shown to the user while a download is tracked.
type State struct {
	Phase      Status
	Percent    int
	Downloaded int64
	Total      int64
	Speed      string
	ETA        string
	Message    string
}

// Snapshot is what a listener sees after every change. A nil State means no
// progress is displayed.
type Snapshot struct {
	Downloading bool
	State       *State
}

type Result struct {
	Duration float64
	Title    string
}

// Listener callbacks run on the tracker's goroutines, never under its lock.
type Listener struct {
	OnUpdate   func(Snapshot)
	OnComplete func(Result)
	OnFailure  func(error)
}

// Tracker owns the download lifecycle of one project: start, attach on
// conflict, pump feed events and tear down on a terminal event.
type Tracker struct {
	projectID string
	initiator Initiator
	feed      Feed
	listener  Listener
	logger    *slog.Logger

	mu          sync.Mutex
	downloading bool
	state       *State
	stream      Stream
	generation  uint64
	closed      bool

	wg sync.WaitGroup
}

func NewTracker(projectID string, initiator Initiator, feed Feed, listener Listener, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		projectID: projectID,
		initiator: initiator,
		feed:      feed,
		listener:  listener,
		logger:    logger,
	}
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) Downloading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloading
}

// Start requests a download and follows its progress. It does nothing while
// a download is already tracked. A conflict attaches to the running download;
// any other failure rolls back and is returned.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.downloading {
		t.mu.Unlock()
		return nil
	}
	t.downloading = true
	t.state = &State{Phase: StatusStarting}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.emit(snap)

	err := t.initiator.StartDownload(ctx, t.projectID)
	if err != nil && !errors.Is(err, ErrConflict) {
		t.rollback()
		return fmt.Errorf("start download: %w", err)
	}
	if errors.Is(err, ErrConflict) {
		t.logger.Info("download already running, attaching", "project_id", t.projectID)
	}
	return t.Attach(ctx)
}

// Attach subscribes to the progress feed, replacing any previous stream.
func (t *Tracker) Attach(ctx context.Context) error {
	stream, err := t.feed.Subscribe(ctx, t.projectID)
	if err != nil {
		t.rollback()
		return fmt.Errorf("subscribe to progress: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		stream.Close()
		return ErrClosed
	}
	prev := t.stream
	t.stream = stream
	t.generation++
	gen := t.generation
	t.downloading = true
	if t.state == nil {
		t.state = &State{Phase: StatusStarting}
	}
	t.wg.Add(1)
	t.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	go t.pump(gen, stream)
	return nil
}

// Close releases the stream and waits for the pump to exit. Listener
// callbacks are not invoked afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	stream := t.stream
	t.stream = nil
	t.generation++
	t.downloading = false
	t.state = nil
	t.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	t.wg.Wait()
}

func (t *Tracker) pump(gen uint64, stream Stream) {
	defer t.wg.Done()

	for msg := range stream.Messages() {
		if msg.Err != nil {
			var te *TransportError
			if errors.As(msg.Err, &te) && te.Temporary {
				t.logger.Warn("progress stream interrupted", "project_id", t.projectID, "error", msg.Err)
				continue
			}
			t.fail(gen, msg.Err)
			return
		}
		if done := t.handle(gen, msg.Event); done {
			return
		}
	}
	t.fail(gen, ErrStreamClosed)
}

// handle applies ev and reports whether the pump should stop.
func (t *Tracker) handle(gen uint64, ev Event) bool {
	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return true
	}

	switch ev.Status {
	case StatusStarting, StatusStarted:
		t.state = &State{Phase: StatusStarting}
	case StatusDownloading:
		t.state = &State{
			Phase:      StatusDownloading,
			Percent:    PercentOf(ev),
			Downloaded: ev.Downloaded,
			Total:      ev.Total,
			Speed:      ev.Speed,
			ETA:        ev.ETA,
		}
	case StatusFinished:
		t.state = &State{Phase: StatusFinished, Percent: 100}
	case StatusComplete:
		t.state = &State{Phase: StatusComplete, Percent: 100}
		stream := t.teardownLocked(false)
		snap := t.snapshotLocked()
		t.mu.Unlock()

		if stream != nil {
			stream.Close()
		}
		t.logger.Info("download complete", "project_id", t.projectID, "title", ev.Title, "duration", ev.Duration)
		t.emit(snap)
		if t.listener.OnComplete != nil {
			t.listener.OnComplete(Result{Duration: ev.Duration, Title: ev.Title})
		}
		return true
	case StatusError:
		t.mu.Unlock()
		t.fail(gen, &DownloadError{Message: ev.Error})
		return true
	default:
		t.mu.Unlock()
		t.logger.Debug("ignoring progress event", "status", ev.Status)
		return false
	}

	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.emit(snap)
	return false
}

func (t *Tracker) fail(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return
	}
	stream := t.teardownLocked(true)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	t.logger.Warn("download failed", "project_id", t.projectID, "error", err)
	t.emit(snap)
	if t.listener.OnFailure != nil {
		t.listener.OnFailure(err)
	}
}

func (t *Tracker) rollback() {
	t.mu.Lock()
	t.downloading = false
	t.state = nil
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.emit(snap)
}

// teardownLocked ends the current stream's generation and returns it for
// closing outside the lock.
func (t *Tracker) teardownLocked(clearState bool) Stream {
	stream := t.stream
	t.stream = nil
	t.generation++
	t.downloading = false
	if clearState {
		t.state = nil
	}
	return stream
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{Downloading: t.downloading}
	if t.state != nil {
		st := *t.state
		snap.State = &st
	}
	return snap
}

func (t *Tracker) emit(snap Snapshot) {
	if t.listener.OnUpdate != nil {
		t.listener.OnUpdate(snap)
	}
}
