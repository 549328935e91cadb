package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iroosevelt/nerderland-live/internal/config"
)

// ErrNotTracked reports that the stream has no presence entry. Callers fall
// back to the relational store, which distinguishes unknown streams from
// streams with no active room.
var ErrNotTracked = errors.New("stream not tracked")

// Store mirrors live viewer counts to Redis and fans updates out over
// pub/sub so other processes (the web app, a future second signaling
// instance) can observe counts without polling the database.
type Store interface {
	SetViewerCount(ctx context.Context, streamID string, count int) error
	// GetViewerCount returns ErrNotTracked when the stream has no entry.
	GetViewerCount(ctx context.Context, streamID string) (int, error)
	ClearStream(ctx context.Context, streamID string) error
	LiveStreams(ctx context.Context) ([]string, error)
	Close() error
}

// StreamUpdate is the payload published on every viewer-count change.
type StreamUpdate struct {
	StreamID string `json:"stream_id"`
	Count    int    `json:"count"`
	Ended    bool   `json:"ended,omitempty"`
}

// Redis key patterns:
// live:stream:{stream_id}:viewers   STRING<count>  - current viewer count
// live:streams                      SET<stream_id> - streams with an active room

func streamViewersKey(streamID string) string {
	return fmt.Sprintf("live:stream:%s:viewers", streamID)
}

const liveStreamsKey = "live:streams"

type redisStore struct {
	client  *redis.Client
	channel string
}

// NewRedisStore creates a new Redis-backed presence store.
func NewRedisStore(cfg config.RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "live:stream_updates"
	}

	return &redisStore{client: client, channel: channel}, nil
}

func (s *redisStore) SetViewerCount(ctx context.Context, streamID string, count int) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, streamViewersKey(streamID), count, 0)
	pipe.SAdd(ctx, liveStreamsKey, streamID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, StreamUpdate{StreamID: streamID, Count: count})
}

func (s *redisStore) GetViewerCount(ctx context.Context, streamID string) (int, error) {
	val, err := s.client.Get(ctx, streamViewersKey(streamID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotTracked
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (s *redisStore) ClearStream(ctx context.Context, streamID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, streamViewersKey(streamID))
	pipe.SRem(ctx, liveStreamsKey, streamID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, StreamUpdate{StreamID: streamID, Count: 0, Ended: true})
}

func (s *redisStore) LiveStreams(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, liveStreamsKey).Result()
}

func (s *redisStore) publish(ctx context.Context, update StreamUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
