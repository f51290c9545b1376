package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const defaultHistory = 100

// RedisSink publishes notifications on a pub/sub channel and keeps the most recent
// ones in a capped list named "<channel>:recent" for operators that were not subscribed.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	history int64
}

// NewRedisSink builds a sink on an existing client. history <= 0 uses a default cap.
func NewRedisSink(client redis.UniversalClient, channel string, history int) (*RedisSink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if channel == "" {
		return nil, errors.New("redis channel is required")
	}
	if history <= 0 {
		history = defaultHistory
	}
	return &RedisSink{client: client, channel: channel, history: int64(history)}, nil
}

// RecentKey is the list holding the latest notifications.
func (s *RedisSink) RecentKey() string {
	return s.channel + ":recent"
}

func (s *RedisSink) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.channel, payload)
	pipe.LPush(ctx, s.RecentKey(), payload)
	pipe.LTrim(ctx, s.RecentKey(), 0, s.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
