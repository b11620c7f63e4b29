package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// ConnectRedis builds a client from a redis:// URL or a bare host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisPublisher appends each event to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher publishes to stream.  maxLen > 0 trims the stream
// approximately to that many entries.
func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Name() string { return "redis:" + p.stream }

func (p *RedisPublisher) Publish(ctx context.Context, ev types.Event) error {
	args, err := xaddArgs(p.stream, p.maxLen, ev)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func xaddArgs(stream string, maxLen int64, ev types.Event) (*redis.XAddArgs, error) {
	payload, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: maxLen > 0,
		Values: map[string]any{
			"seq":     strconv.FormatInt(ev.Seq, 10),
			"kind":    string(ev.Kind),
			"key":     partitionKey(ev),
			"hash":    ev.Hash,
			"payload": string(payload),
		},
	}, nil
}
