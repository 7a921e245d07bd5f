package notify

// This file implements Redis-based event publishing so other shop tools
// (the web front end, chat bots) can react to usage changes.
//
//	capacity                                    Redis
//	┌─────────────┐  PUBLISH capacity:events    ┌─────────────┐
//	│   Redis     │ ──────────────────────────▶ │  Pub/Sub    │ → live toasts
//	│  Publisher  │                             └─────────────┘
//	│             │  XADD capacity:events:stream┌─────────────┐
//	│             │ ──────────────────────────▶ │  Streams    │ → audit trail
//	└─────────────┘                             └─────────────┘

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events to a Redis Pub/Sub channel and stream.
type RedisPublisher struct {
	client        *redis.Client
	pubSubChannel string
	streamName    string
	streamMaxLen  int64

	// Debug callback (optional)
	debugFunc func(format string, args ...any)
}

// RedisPublisherConfig holds configuration for the Redis event publisher.
type RedisPublisherConfig struct {
	// RedisURL is the Redis connection URL
	RedisURL string

	// RedisPassword is the Redis password (optional)
	RedisPassword string

	// Channel overrides the pub/sub channel (default: "capacity:events")
	Channel string

	// Stream overrides the stream name (default: "capacity:events:stream")
	Stream string

	// StreamMaxLen caps the stream length (default: 10000)
	StreamMaxLen int64

	// DebugFunc is an optional callback for debug logging
	DebugFunc func(format string, args ...any)
}

// NewRedisPublisher creates a new Redis event publisher.
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.Channel == "" {
		cfg.Channel = "capacity:events"
	}
	if cfg.Stream == "" {
		cfg.Stream = "capacity:events:stream"
	}
	if cfg.StreamMaxLen == 0 {
		cfg.StreamMaxLen = 10000
	}

	return &RedisPublisher{
		client:        redis.NewClient(opts),
		pubSubChannel: cfg.Channel,
		streamName:    cfg.Stream,
		streamMaxLen:  cfg.StreamMaxLen,
		debugFunc:     cfg.DebugFunc,
	}, nil
}

// debug logs a message if debug function is configured
func (p *RedisPublisher) debug(format string, args ...any) {
	if p.debugFunc != nil {
		p.debugFunc(format, args...)
	}
}

// Ping verifies the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Notify publishes e to the channel and appends it to the stream.
func (p *RedisPublisher) Notify(ctx context.Context, e Event) error {
	jsonData, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.debug("notify: publishing %s to %s", e.ID, p.pubSubChannel)
	if err := p.client.Publish(ctx, p.pubSubChannel, jsonData).Err(); err != nil {
		return fmt.Errorf("failed to publish to Pub/Sub: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamName,
		MaxLen: p.streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"id":        e.ID,
			"severity":  string(e.Severity),
			"timestamp": e.Timestamp,
			"payload":   string(jsonData),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}
	p.debug("notify: stream add successful")
	return nil
}

// PubSubChannel returns the pub/sub channel name.
func (p *RedisPublisher) PubSubChannel() string {
	return p.pubSubChannel
}

// StreamName returns the stream name.
func (p *RedisPublisher) StreamName() string {
	return p.streamName
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
