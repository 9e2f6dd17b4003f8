package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snipper/snipper/internal/progress"
)

// RedisBroker keeps locks as expiring keys and relays progress over
// pub/sub, so the SSE endpoint can run in any server process.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisBroker connects to the redis server at url (redis://...) and
// verifies connectivity.
func NewRedisBroker(url string, logger *slog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisBroker{client: client, logger: logger, now: time.Now}, nil
}

func (b *RedisBroker) Acquire(ctx context.Context, projectID string) error {
	ok, err := b.client.SetNX(ctx, activeKey(projectID), "1", LockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}

	if !ok {
		status, err := b.Status(ctx, projectID)
		if err != nil {
			return err
		}
		if !status.Stale(b.now()) {
			return ErrInProgress
		}

		b.logger.Warn("clearing stale download lock", "project_id", projectID)
		if err := b.client.Del(ctx, activeKey(projectID), heartbeatKey(projectID)).Err(); err != nil {
			return fmt.Errorf("clear stale lock: %w", err)
		}
		ok, err = b.client.SetNX(ctx, activeKey(projectID), "1", LockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return ErrInProgress
		}
	}

	return b.Heartbeat(ctx, projectID)
}

func (b *RedisBroker) Heartbeat(ctx context.Context, projectID string) error {
	if err := b.client.Set(ctx, heartbeatKey(projectID), b.now().Unix(), LockTTL).Err(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (b *RedisBroker) Release(ctx context.Context, projectID string) error {
	if err := b.client.Del(ctx, activeKey(projectID), heartbeatKey(projectID)).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (b *RedisBroker) Status(ctx context.Context, projectID string) (LockStatus, error) {
	n, err := b.client.Exists(ctx, activeKey(projectID)).Result()
	if err != nil {
		return LockStatus{}, fmt.Errorf("read lock: %w", err)
	}
	status := LockStatus{Active: n > 0}
	if !status.Active {
		return status, nil
	}

	ts, err := b.client.Get(ctx, heartbeatKey(projectID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return LockStatus{}, fmt.Errorf("read heartbeat: %w", err)
	default:
		status.HeartbeatAt = time.Unix(ts, 0)
	}
	return status, nil
}

func (b *RedisBroker) Publish(ctx context.Context, projectID string, ev progress.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channelKey(projectID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, projectID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channelKey(projectID))
	// wait for the subscription to be confirmed so no event published
	// after this call returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan progress.Event, 16),
		done:   make(chan struct{}),
		logger: b.logger,
	}
	go sub.run()
	return sub, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan progress.Event
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *redisSubscription) run() {
	defer close(s.events)

	for msg := range s.ps.Channel() {
		var ev progress.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.logger.Warn("dropping malformed progress event", "channel", msg.Channel, "error", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan progress.Event { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
