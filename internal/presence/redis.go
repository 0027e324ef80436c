package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// DefaultTTL bounds how long a chat's presence hash survives without any
// Join. A crashed process leaves entries behind for at most this long.
const DefaultTTL = 10 * time.Minute

// RedisTracker keeps one hash per chat: field = connection id, value = user
// id. A user with two tabs open shows up once in Online.
type RedisTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTracker(rdb *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{rdb: rdb, ttl: ttl}
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func key(chatID int64) string { return fmt.Sprintf("presence:chat:%d", chatID) }

func (t *RedisTracker) Join(ctx context.Context, chatID int64, connID string, userID uuid.UUID) error {
	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key(chatID), connID, userID.String())
	pipe.Expire(ctx, key(chatID), t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	return nil
}

func (t *RedisTracker) Leave(ctx context.Context, chatID int64, connID string) error {
	if err := t.rdb.HDel(ctx, key(chatID), connID).Err(); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

func (t *RedisTracker) Online(ctx context.Context, chatID int64) ([]uuid.UUID, error) {
	vals, err := t.rdb.HVals(ctx, key(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence online: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(vals))
	for _, v := range vals {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}
