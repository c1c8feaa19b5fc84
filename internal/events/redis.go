// Package events provides the Redis-backed rename event publisher. The
// service core only knows the services.RenamePublisher interface; this
// package is the single place that touches a broker, and it is entirely
// optional: deployments without Redis run with a nil publisher.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parfive/go-handle-backend/internal/services"
)

// DefaultChannel is the pub/sub channel rename events are published to.
const DefaultChannel = "handle.renamed"

// RedisPublisher publishes rename events to a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis at the given URL
// (redis://host:port/db) and verifies the connection with a short ping.
// An empty channel selects DefaultChannel.
func NewRedisPublisher(url, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

// PublishRename implements services.RenamePublisher.
func (p *RedisPublisher) PublishRename(ctx context.Context, ev services.RenameEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, payload).Err()
}

// Close releases the underlying connection pool.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
