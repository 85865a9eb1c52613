// Package redisbus mirrors session events into Redis so other processes can
// follow games without talking to the server.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/obslog"
)

const DefaultSnapshotTTL = 24 * time.Hour

// ChannelKey is the pub/sub channel carrying every event of a session
func ChannelKey(sessionID string) string { return "chess:session:" + sessionID }

// SnapshotKey holds the latest state of a session
func SnapshotKey(sessionID string) string { return ChannelKey(sessionID) + ":state" }

// Publisher is an event subscriber that PUBLISHes each event and keeps the
// latest snapshot under a TTL
type Publisher struct {
	rdb *redis.Client
	ttl time.Duration
}

// Dial connects to redisURL and checks the server answers
func Dial(redisURL string, ttl time.Duration) (*Publisher, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl), nil
}

func New(rdb *redis.Client, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Publisher{rdb: rdb, ttl: ttl}
}

func (p *Publisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// Deliver publishes ev and updates the snapshot. Removal deletes it.
func (p *Publisher) Deliver(ctx context.Context, ev core.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := p.rdb.TxPipeline()
	pipe.Publish(ctx, ChannelKey(ev.SessionID), raw)
	switch {
	case ev.Type == core.EventSessionRemoved:
		pipe.Del(ctx, SnapshotKey(ev.SessionID))
	case ev.State != nil:
		state, err := json.Marshal(ev.State)
		if err != nil {
			return err
		}
		pipe.Set(ctx, SnapshotKey(ev.SessionID), state, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		obslog.L().Warn("redis_publish_failed",
			zap.String("session", ev.SessionID),
			zap.String("event", ev.Type),
			zap.Error(err))
		return err
	}
	return nil
}

// Snapshot loads the mirrored state. A missing key returns nil, nil.
func (p *Publisher) Snapshot(ctx context.Context, sessionID string) (*core.SessionState, error) {
	raw, err := p.rdb.Get(ctx, SnapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st core.SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Follow subscribes to a session's events until ctx ends. The returned
// channel closes when the subscription does.
func (p *Publisher) Follow(ctx context.Context, sessionID string) (<-chan core.Event, error) {
	sub := p.rdb.Subscribe(ctx, ChannelKey(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan core.Event)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev core.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					obslog.L().Debug("redis_bad_payload", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
