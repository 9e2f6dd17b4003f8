package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/snipper/snipper/internal/progress"
)

// Subscribe opens the project's progress feed. The first connection is made
// before returning; later drops are reported as temporary transport errors
// and redialled with backoff until a terminal event arrives or the retries
// run out.
func (c *HTTPClient) Subscribe(ctx context.Context, id string) (progress.Stream, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &eventStream{
		client:   c,
		url:      c.baseURL + projectPath(id) + "/download/progress",
		id:       id,
		ctx:      streamCtx,
		cancel:   cancel,
		messages: make(chan progress.Message, 16),
	}

	body, err := s.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	go s.run(body)
	return s, nil
}

type eventStream struct {
	client *HTTPClient
	url    string
	id     string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	messages  chan progress.Message
}

func (s *eventStream) Messages() <-chan progress.Message {
	return s.messages
}

// Close stops the stream without waiting for the reader to exit.
func (s *eventStream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

func (s *eventStream) dial(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.client.stream.Do(req)
		done <- result{resp, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		s.cancel()
		r = <-done
		if r.resp != nil {
			r.resp.Body.Close()
		}
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, &progress.TransportError{Err: r.err, Temporary: true}
	}

	if r.resp.StatusCode != http.StatusOK {
		apiErr := readAPIError(r.resp)
		r.resp.Body.Close()
		return nil, &progress.TransportError{Err: apiErr, Temporary: apiErr.IsRetryable()}
	}
	return r.resp.Body, nil
}

func (s *eventStream) run(body io.ReadCloser) {
	defer close(s.messages)

	attempts := 0
	backoff := s.client.minBackoff
	for {
		terminal, received, err := s.read(body)
		body.Close()
		if terminal || s.ctx.Err() != nil {
			return
		}
		if received {
			attempts = 0
			backoff = s.client.minBackoff
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}

		for {
			attempts++
			if attempts > s.client.maxReconnects {
				s.send(progress.Message{Err: &progress.TransportError{Err: fmt.Errorf("giving up after %d reconnects: %w", s.client.maxReconnects, err)}})
				return
			}
			if !s.send(progress.Message{Err: &progress.TransportError{Err: err, Temporary: true}}) {
				return
			}

			select {
			case <-time.After(backoff):
			case <-s.ctx.Done():
				return
			}
			backoff = min(backoff*2, s.client.maxBackoff)

			s.client.logger.Debug("reconnecting progress stream", "project_id", s.id, "attempt", attempts)
			body, err = s.dial(s.ctx)
			if err == nil {
				break
			}
			var te *progress.TransportError
			if errors.As(err, &te) && !te.Temporary {
				s.send(progress.Message{Err: err})
				return
			}
			if s.ctx.Err() != nil {
				return
			}
		}
	}
}

// read consumes events until the body ends. It reports whether a terminal
// event was delivered and whether any event arrived at all.
func (s *eventStream) read(body io.Reader) (terminal, received bool, err error) {
	r := bufio.NewReader(body)
	var data strings.Builder

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, received, nil
			}
			return false, received, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			payload := data.String()
			data.Reset()

			var ev progress.Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				s.client.logger.Warn("malformed progress event", "project_id", s.id, "error", err)
				continue
			}
			received = true
			if !s.send(progress.Message{Event: ev}) {
				return true, received, nil
			}
			if ev.Status.Terminal() {
				return true, received, nil
			}
		case strings.HasPrefix(line, ":"):
			// comment or keepalive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (s *eventStream) send(msg progress.Message) bool {
	select {
	case s.messages <- msg:
		return true
	case <-s.ctx.Done():
		return false
	}
}
